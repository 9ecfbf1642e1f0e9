package wiki

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/nineff/Wikimate/metrics"
)

// FileRevision is one typed entry of a file's upload history. Index 0 of
// a history is always the current revision.
type FileRevision struct {
	Timestamp      string `json:"timestamp"`
	User           string `json:"user"`
	UserID         int    `json:"user_id"`
	Comment        string `json:"comment"`
	URL            string `json:"url"`
	DescriptionURL string `json:"description_url"`
	ArchiveName    string `json:"archive_name,omitempty"`
	Size           int    `json:"size"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	SHA1           string `json:"sha1"`
	Mime           string `json:"mime"`
	MediaType      string `json:"media_type"`
	BitDepth       int    `json:"bit_depth"`
}

// maxFileHistory caps how many revisions a single info fetch pulls
const maxFileHistory = 500

// maxDownloadBytes bounds a raw file download
const maxDownloadBytes = 50 * 1024 * 1024

// File is the client-side view of one uploaded file. Like Page, business
// failures are recorded rather than raised, and only communication
// failures return a Go error. The name is held without its namespace
// prefix; API calls add "File:" where the protocol wants it.
type File struct {
	client *Client
	name   string

	fetched   bool
	exists    bool
	invalid   bool
	revisions []FileRevision

	errs ErrorLog
}

// NewFile fetches the named file's revision records and returns its
// entity. The name may carry the "File:" prefix or not.
func NewFile(ctx context.Context, client *Client, name string) (*File, error) {
	f := &File{
		client: client,
		name:   strings.TrimPrefix(strings.TrimSpace(name), "File:"),
	}
	if err := f.Reload(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Name returns the file name without namespace prefix
func (f *File) Name() string { return f.name }

// Exists reports whether the file was present at the last fetch
func (f *File) Exists() bool { return f.exists }

// Invalid reports whether the server rejected the file name itself
func (f *File) Invalid() bool { return f.invalid }

// Errors returns the file's error record, keyed by the failing context
func (f *File) Errors() map[string]string {
	return f.errs.snapshot()
}

// History returns the known revisions, newest first
func (f *File) History() []FileRevision {
	out := make([]FileRevision, len(f.revisions))
	copy(out, f.revisions)
	return out
}

// Current returns the current revision record
func (f *File) Current() (FileRevision, bool) {
	if len(f.revisions) == 0 {
		return FileRevision{}, false
	}
	return f.revisions[0], true
}

// Accessors over the current revision. Each returns the zero value when
// no revision is known.

func (f *File) URL() string       { r, _ := f.Current(); return r.URL }
func (f *File) Timestamp() string { r, _ := f.Current(); return r.Timestamp }
func (f *File) Size() int         { r, _ := f.Current(); return r.Size }
func (f *File) Width() int        { r, _ := f.Current(); return r.Width }
func (f *File) Height() int       { r, _ := f.Current(); return r.Height }
func (f *File) SHA1() string      { r, _ := f.Current(); return r.SHA1 }
func (f *File) Mime() string      { r, _ := f.Current(); return r.Mime }
func (f *File) MediaType() string { r, _ := f.Current(); return r.MediaType }
func (f *File) Uploader() string  { r, _ := f.Current(); return r.User }

// Reload fetches the file's revision records from the server
func (f *File) Reload(ctx context.Context) error {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", "File:"+f.name)
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "timestamp|user|userid|comment|url|size|dimensions|sha1|mime|mediatype|bitdepth|archivename")
	params.Set("iilimit", fmt.Sprintf("%d", maxFileHistory))

	env, err := f.client.Get(ctx, params)
	if err != nil {
		return err
	}

	if code, info, ok := env.apiError(); ok {
		f.errs.record("fetch", code+": "+info)
		return nil
	}

	page := env.firstPage()
	if page == nil {
		f.errs.record("fetch", "no file data in query response")
		return nil
	}

	f.fetched = true

	if _, bad := page["invalid"]; bad {
		f.invalid = true
		reason := getString(page["invalidreason"])
		if reason == "" {
			reason = "file name rejected by the server"
		}
		f.errs.record("fetch", reason)
		return nil
	}

	info := getSlice(page["imageinfo"])
	if _, missing := page["missing"]; missing && len(info) == 0 {
		f.exists = false
		f.revisions = nil
		f.errs.reset()
		return nil
	}

	revisions := make([]FileRevision, 0, len(info))
	for _, v := range info {
		revisions = append(revisions, parseFileRevision(getMap(v)))
	}

	f.exists = len(revisions) > 0
	f.revisions = revisions
	f.errs.reset()

	f.client.logger.Debug("Fetched file info",
		"file", f.name,
		"revisions", len(revisions))
	return nil
}

func parseFileRevision(m map[string]interface{}) FileRevision {
	return FileRevision{
		Timestamp:      getString(m["timestamp"]),
		User:           getString(m["user"]),
		UserID:         getInt(m["userid"]),
		Comment:        getString(m["comment"]),
		URL:            getString(m["url"]),
		DescriptionURL: getString(m["descriptionurl"]),
		ArchiveName:    getString(m["archivename"]),
		Size:           getInt(m["size"]),
		Width:          getInt(m["width"]),
		Height:         getInt(m["height"]),
		SHA1:           getString(m["sha1"]),
		Mime:           getString(m["mime"]),
		MediaType:      getString(m["mediatype"]),
		BitDepth:       getInt(m["bitdepth"]),
	}
}

// Download fetches the current revision's raw bytes straight from the
// file URL. A missing URL or a refusing server is recorded and returns
// nil without error; only transport failures are errors.
func (f *File) Download(ctx context.Context) ([]byte, error) {
	f.errs.reset()

	fileURL := f.URL()
	if fileURL == "" {
		f.errs.record("download", "no file URL known; fetch the file info first or check Exists")
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, &CommError{Code: CommCodeTransport, Action: "download", Reason: "failed to build request", Err: err}
	}
	req.Header.Set("User-Agent", f.client.config.UserAgent)

	resp, err := f.client.httpClient.Do(req)
	if err != nil {
		return nil, &CommError{Code: CommCodeTransport, Action: "download", Reason: "download failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		f.errs.record("download", fmt.Sprintf("server answered HTTP %d for %s", resp.StatusCode, fileURL))
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, &CommError{Code: CommCodeTransport, Action: "download", Reason: "failed to read file body", Err: err}
	}

	metrics.ContentSize.WithLabelValues("download").Observe(float64(len(data)))
	return data, nil
}

// DownloadTo downloads the current revision and writes it to path
func (f *File) DownloadTo(ctx context.Context, path string) error {
	data, err := f.Download(ctx)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		f.errs.record("download", "failed to write "+path+": "+err.Error())
	}
	return nil
}

// UploadOptions selects the upload source and its metadata. Exactly one
// of Data, Path, or URL must be set.
type UploadOptions struct {
	Data []byte // raw content
	Path string // local file to read
	URL  string // remote URL for a server-side fetch

	Comment   string // upload comment, also the initial description if Text is empty
	Text      string // initial description page text
	Overwrite bool   // replace an existing file without warning
}

// Upload sends a new revision of the file. Warnings and rejections from
// the server are recorded and return false; a confirmed success refreshes
// the revision records.
func (f *File) Upload(ctx context.Context, opts UploadOptions) (bool, error) {
	f.errs.reset()

	sources := 0
	for _, set := range []bool{opts.Data != nil, opts.Path != "", opts.URL != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return false, &ValidationError{
			Field:      "upload source",
			Message:    "exactly one of Data, Path, or URL must be provided",
			Suggestion: "Pass raw bytes in Data, a local path in Path, or a remote URL in URL.",
		}
	}

	token, err := f.client.Token(ctx, TokenCSRF)
	if err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("action", "upload")
	params.Set("filename", f.name)
	params.Set("token", token)
	if opts.Comment != "" {
		params.Set("comment", opts.Comment)
	}
	if opts.Text != "" {
		params.Set("text", opts.Text)
	}
	if opts.Overwrite {
		params.Set("ignorewarnings", "1")
	}

	var env Envelope
	if opts.URL != "" {
		params.Set("url", opts.URL)
		env, err = f.client.Post(ctx, params)
	} else {
		data := opts.Data
		if opts.Path != "" {
			data, err = os.ReadFile(opts.Path)
			if err != nil {
				return false, &ValidationError{
					Field:   "Path",
					Value:   opts.Path,
					Message: "cannot read upload source: " + err.Error(),
				}
			}
		}
		metrics.ContentSize.WithLabelValues("upload").Observe(float64(len(data)))
		env, err = f.client.PostMultipart(ctx, params, "file", f.name, data)
	}
	if err != nil {
		metrics.RecordEdit("upload", false)
		return false, err
	}

	if code, info, ok := env.apiError(); ok {
		if code == "badtoken" {
			f.client.InvalidateToken()
		}
		f.errs.record("upload", code+": "+info)
		metrics.RecordEdit("upload", false)
		return false, nil
	}

	upload := getMap(env["upload"])
	switch getString(upload["result"]) {
	case "Success":
		metrics.RecordEdit("upload", true)
		f.client.logger.Info("Uploaded file", "file", f.name)
		return true, f.Reload(ctx)

	case "Warning":
		f.errs.record("upload", "upload held back by warnings: "+warningKeys(upload))
		metrics.RecordEdit("upload", false)
		return false, nil

	default:
		f.errs.record("upload", fmt.Sprintf("unexpected upload result: %q", getString(upload["result"])))
		metrics.RecordEdit("upload", false)
		return false, nil
	}
}

func warningKeys(upload map[string]interface{}) string {
	warnings := getMap(upload["warnings"])
	if len(warnings) == 0 {
		return "unspecified"
	}
	keys := make([]string, 0, len(warnings))
	for k := range warnings {
		keys = append(keys, k)
	}
	return strings.Join(keys, ", ")
}

// Revert restores an archived revision identified by its archive name,
// as reported in the file's history
func (f *File) Revert(ctx context.Context, archiveName, comment string) (bool, error) {
	f.errs.reset()

	token, err := f.client.Token(ctx, TokenCSRF)
	if err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("action", "filerevert")
	params.Set("filename", f.name)
	params.Set("archivename", archiveName)
	params.Set("token", token)
	if comment != "" {
		params.Set("comment", comment)
	}

	env, err := f.client.Post(ctx, params)
	if err != nil {
		metrics.RecordEdit("revert", false)
		return false, err
	}

	if code, info, ok := env.apiError(); ok {
		if code == "badtoken" {
			f.client.InvalidateToken()
		}
		f.errs.record("revert", code+": "+info)
		metrics.RecordEdit("revert", false)
		return false, nil
	}

	if getString(getMap(env["filerevert"])["result"]) != "Success" {
		f.errs.record("revert", "unexpected revert result")
		metrics.RecordEdit("revert", false)
		return false, nil
	}

	metrics.RecordEdit("revert", true)
	f.client.logger.Info("Reverted file", "file", f.name, "archive", archiveName)
	return true, f.Reload(ctx)
}

// Delete removes the file and its description page
func (f *File) Delete(ctx context.Context, reason string) (bool, error) {
	f.errs.reset()

	token, err := f.client.Token(ctx, TokenCSRF)
	if err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("action", "delete")
	params.Set("title", "File:"+f.name)
	params.Set("token", token)
	if reason != "" {
		params.Set("reason", reason)
	}

	env, err := f.client.Post(ctx, params)
	if err != nil {
		metrics.RecordEdit("delete", false)
		return false, err
	}

	if code, info, ok := env.apiError(); ok {
		if code == "badtoken" {
			f.client.InvalidateToken()
		}
		f.errs.record("delete", code+": "+info)
		metrics.RecordEdit("delete", false)
		return false, nil
	}

	f.exists = false
	f.revisions = nil
	metrics.RecordEdit("delete", true)
	f.client.logger.Info("Deleted file", "file", f.name, "reason", reason)
	return true, nil
}
