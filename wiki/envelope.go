package wiki

// Envelope is a decoded API response. The request engine hands it back
// without interpreting business-level fields; entities pick out what they
// need with the typed accessors below.
type Envelope map[string]interface{}

// apiError extracts the top-level error block, if the server reported one
func (e Envelope) apiError() (code, info string, ok bool) {
	errObj := getMap(e["error"])
	if errObj == nil {
		return "", "", false
	}
	return getString(errObj["code"]), getString(errObj["info"]), true
}

// firstPage returns the single page object under query.pages. The API
// keys pages by numeric ID (or "-1" for misses), so the caller never
// knows the key in advance.
func (e Envelope) firstPage() map[string]interface{} {
	pages := getMap(getMap(e["query"])["pages"])
	for _, v := range pages {
		return getMap(v)
	}
	return nil
}

func getString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func getInt(v interface{}) int {
	f, _ := v.(float64)
	return int(f)
}

func getMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func getSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}
