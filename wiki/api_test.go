package wiki

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

// newMockClient creates a client pointed at a mock server, with a short
// timeout and a bounded lag budget so failing tests cannot hang
func newMockClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	config := NewConfig(server.URL)
	config.Username = "TestUser"
	config.Password = "TestPass"
	config.Timeout = 5 * time.Second
	config.MaxLagRetries = 3
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(config, logger)
}

// mockWikiServer creates a test server that answers token and login
// requests itself and delegates everything else to handler. tokenFetches,
// if non-nil, is incremented for every token request by kind.
func mockWikiServer(t *testing.T, tokenFetches map[string]int, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		action := r.FormValue("action")
		meta := r.FormValue("meta")

		if action == "query" && meta == "tokens" {
			kind := r.FormValue("type")
			if tokenFetches != nil {
				tokenFetches[kind]++
			}
			writeJSON(w, map[string]interface{}{
				"query": map[string]interface{}{
					"tokens": map[string]interface{}{
						kind + "token": "test-" + kind + "-token",
					},
				},
			})
			return
		}

		if action == "login" {
			writeJSON(w, map[string]interface{}{
				"login": map[string]interface{}{
					"result": "Success",
				},
			})
			return
		}

		handler(w, r)
	}))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// pageQueryResponse builds the query envelope for an existing page
func pageQueryResponse(title, content, revTimestamp, curTimestamp string) map[string]interface{} {
	return map[string]interface{}{
		"curtimestamp": curTimestamp,
		"query": map[string]interface{}{
			"pages": map[string]interface{}{
				"42": map[string]interface{}{
					"pageid": float64(42),
					"title":  title,
					"revisions": []interface{}{
						map[string]interface{}{
							"timestamp": revTimestamp,
							"slots": map[string]interface{}{
								"main": map[string]interface{}{
									"*": content,
								},
							},
						},
					},
				},
			},
		},
	}
}

// missingPageResponse builds the query envelope for a page that does not exist
func missingPageResponse(title string) map[string]interface{} {
	return map[string]interface{}{
		"curtimestamp": "2026-01-01T00:00:00Z",
		"query": map[string]interface{}{
			"pages": map[string]interface{}{
				"-1": map[string]interface{}{
					"title":   title,
					"missing": "",
				},
			},
		},
	}
}
