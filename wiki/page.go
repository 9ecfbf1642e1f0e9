package wiki

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nineff/Wikimate/metrics"
)

// snapshot pairs a document's text with the section index built from it.
// The two are always replaced together; a reader never observes text from
// one revision against the index of another.
type snapshot struct {
	text  string
	index *SectionIndex
}

// Page is the client-side view of one wiki document. The title is fixed
// for the object's lifetime; everything else is refreshed from the server.
// Business failures never surface as Go errors: they are recorded per
// context in the page's error record and the operation reports false.
// Only a CommError, meaning the call could not be completed at all,
// propagates.
//
// A Page is not safe for concurrent mutation; callers sharing one across
// goroutines must serialize access themselves.
type Page struct {
	client *Client
	title  string

	fetched bool
	exists  bool
	invalid bool
	snap    snapshot

	// Edit guard: baseTimestamp is the fetched revision's timestamp,
	// startTimestamp the server clock at fetch. The server rejects a
	// write whose base predates a concurrent edit.
	baseTimestamp  string
	startTimestamp string

	errs ErrorLog
}

// NewPage fetches the named document and returns its entity. The page may
// turn out missing (Exists false) or structurally rejected (Invalid true);
// neither is an error. The returned error is always a communication
// failure.
func NewPage(ctx context.Context, client *Client, title string) (*Page, error) {
	p := &Page{
		client: client,
		title:  title,
		snap:   snapshot{index: BuildSectionIndex("")},
	}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Title returns the page's identity, stable for the object lifetime
func (p *Page) Title() string { return p.title }

// Exists reports whether the document was present at the last fetch or
// has been created by a successful edit since
func (p *Page) Exists() bool { return p.exists }

// Invalid reports whether the server rejected the title itself
func (p *Page) Invalid() bool { return p.invalid }

// Fetched reports whether an initial fetch has completed
func (p *Page) Fetched() bool { return p.fetched }

// Text returns the current known content
func (p *Page) Text() string { return p.snap.text }

// Errors returns the page's error record, keyed by the failing context
func (p *Page) Errors() map[string]string {
	return p.errs.snapshot()
}

// NumSections returns the number of sections in the current content,
// intro included
func (p *Page) NumSections() int {
	return p.snap.index.Len()
}

// Sections returns the current section table in document order
func (p *Page) Sections() []Section {
	return p.snap.index.Sections()
}

// SectionText extracts one section from the current content. The second
// return is false when the selector does not resolve; the miss is also
// recorded in the error record.
func (p *Page) SectionText(sel Selector, includeHeading, includeSubsections bool) (string, bool) {
	text, ok := p.snap.index.SectionText(p.snap.text, sel, includeHeading, includeSubsections)
	if !ok {
		p.errs.record("section", fmt.Sprintf("section %q not found", sel.String()))
		return "", false
	}
	p.errs.reset()
	return text, true
}

// AllSections returns every section's text keyed by index or name
func (p *Page) AllSections(includeHeading bool, keyedBy string) (map[string]string, error) {
	return p.snap.index.AllSections(p.snap.text, includeHeading, keyedBy)
}

// Reload fetches content and metadata from the server and rebuilds the
// section index. Exists and Invalid are re-derived from the response.
func (p *Page) Reload(ctx context.Context) error {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "info|revisions")
	params.Set("rvprop", "content|timestamp")
	params.Set("rvslots", "main")
	params.Set("titles", p.title)
	params.Set("curtimestamp", "1")

	env, err := p.client.Get(ctx, params)
	if err != nil {
		return err
	}

	if code, info, ok := env.apiError(); ok {
		p.errs.record("fetch", code+": "+info)
		return nil
	}

	page := env.firstPage()
	if page == nil {
		p.errs.record("fetch", "no page data in query response")
		return nil
	}

	p.fetched = true
	p.startTimestamp = getString(env["curtimestamp"])

	if _, bad := page["invalid"]; bad {
		p.invalid = true
		reason := getString(page["invalidreason"])
		if reason == "" {
			reason = "title rejected by the server"
		}
		p.errs.record("fetch", reason)
		return nil
	}

	if _, missing := page["missing"]; missing {
		p.exists = false
		p.snap = snapshot{text: "", index: BuildSectionIndex("")}
		p.baseTimestamp = ""
		p.errs.reset()
		return nil
	}

	revs := getSlice(page["revisions"])
	if len(revs) == 0 {
		p.errs.record("fetch", "page has no revisions in query response")
		return nil
	}
	rev := getMap(revs[0])

	text := revisionContent(rev)
	p.exists = true
	p.snap = snapshot{text: text, index: BuildSectionIndex(text)}
	p.baseTimestamp = getString(rev["timestamp"])
	p.errs.reset()

	p.client.logger.Debug("Fetched page",
		"title", p.title,
		"bytes", len(text),
		"sections", p.snap.index.Len())
	return nil
}

// revisionContent digs the wikitext out of a revision object, handling
// both the slot-based layout and the flat legacy one
func revisionContent(rev map[string]interface{}) string {
	if slots := getMap(rev["slots"]); slots != nil {
		main := getMap(slots["main"])
		if s := getString(main["*"]); s != "" {
			return s
		}
		return getString(main["content"])
	}
	if s := getString(rev["*"]); s != "" {
		return s
	}
	return getString(rev["content"])
}

// EditOptions carries the optional fields of a write
type EditOptions struct {
	Summary string
	Minor   bool
}

// SetText replaces the whole document. Creating a page that did not exist
// at the last fetch goes through createonly, so a concurrent creation by
// someone else surfaces as a recorded rejection instead of a silent
// overwrite.
func (p *Page) SetText(ctx context.Context, text string, opts *EditOptions) (bool, error) {
	return p.edit(ctx, text, nil, opts)
}

// SetSectionText replaces one section, or appends a new one when sel is
// the NewSection sentinel (the summary becomes the new heading).
func (p *Page) SetSectionText(ctx context.Context, sel Selector, text string, opts *EditOptions) (bool, error) {
	return p.edit(ctx, text, &sel, opts)
}

func (p *Page) edit(ctx context.Context, text string, sel *Selector, opts *EditOptions) (bool, error) {
	p.errs.reset()
	if opts == nil {
		opts = &EditOptions{}
	}

	params := url.Values{}
	params.Set("action", "edit")
	params.Set("title", p.title)
	params.Set("text", text)
	if opts.Summary != "" {
		params.Set("summary", opts.Summary)
	}
	if opts.Minor {
		params.Set("minor", "1")
	}
	if p.baseTimestamp != "" {
		params.Set("basetimestamp", p.baseTimestamp)
	}
	if p.startTimestamp != "" {
		params.Set("starttimestamp", p.startTimestamp)
	}
	if !p.exists {
		params.Set("createonly", "1")
	}

	if sel != nil {
		if sel.IsNew() {
			params.Set("section", "new")
		} else {
			i, ok := p.snap.index.Resolve(*sel)
			if !ok {
				p.errs.record("edit", fmt.Sprintf("section %q not found", sel.String()))
				return false, nil
			}
			params.Set("section", fmt.Sprintf("%d", i))
		}
	}

	token, err := p.client.Token(ctx, TokenCSRF)
	if err != nil {
		return false, err
	}
	params.Set("token", token)

	metrics.ContentSize.WithLabelValues("edit").Observe(float64(len(text)))

	env, err := p.client.Post(ctx, params)
	if err != nil {
		metrics.RecordEdit("edit", false)
		return false, err
	}

	if code, info, ok := env.apiError(); ok {
		if code == "badtoken" {
			p.client.InvalidateToken()
		}
		p.errs.record("edit", code+": "+info)
		metrics.RecordEdit("edit", false)
		return false, nil
	}

	edit := getMap(env["edit"])
	result := getString(edit["result"])
	if result != "Success" {
		if _, captcha := edit["captcha"]; captcha {
			p.errs.record("edit", "edit denied: the server requires a CAPTCHA response")
		} else {
			p.errs.record("edit", fmt.Sprintf("unexpected edit result: %q", result))
		}
		metrics.RecordEdit("edit", false)
		return false, nil
	}

	p.exists = true
	if ts := getString(edit["newtimestamp"]); ts != "" {
		p.baseTimestamp = ts
		p.startTimestamp = ts
	}

	if sel == nil {
		p.snap = snapshot{text: text, index: BuildSectionIndex(text)}
	} else {
		// A section write only changed part of the document; pull the
		// merged text so the local snapshot stays truthful
		if err := p.Reload(ctx); err != nil {
			return false, err
		}
	}

	metrics.RecordEdit("edit", true)
	p.client.logger.Info("Edited page",
		"title", p.title,
		"new_revision", getInt(edit["newrevid"]),
		"new_page", edit["new"] != nil)
	return true, nil
}

// Delete removes the document. On success the local state collapses to
// the empty, non-existent page.
func (p *Page) Delete(ctx context.Context, reason string) (bool, error) {
	p.errs.reset()

	token, err := p.client.Token(ctx, TokenCSRF)
	if err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("action", "delete")
	params.Set("title", p.title)
	params.Set("token", token)
	if reason != "" {
		params.Set("reason", reason)
	}

	env, err := p.client.Post(ctx, params)
	if err != nil {
		metrics.RecordEdit("delete", false)
		return false, err
	}

	if code, info, ok := env.apiError(); ok {
		if code == "badtoken" {
			p.client.InvalidateToken()
		}
		p.errs.record("delete", code+": "+info)
		metrics.RecordEdit("delete", false)
		return false, nil
	}

	if getMap(env["delete"]) == nil {
		p.errs.record("delete", "no delete confirmation in response")
		metrics.RecordEdit("delete", false)
		return false, nil
	}

	p.exists = false
	p.snap = snapshot{text: "", index: BuildSectionIndex("")}
	p.baseTimestamp = ""

	metrics.RecordEdit("delete", true)
	p.client.logger.Info("Deleted page", "title", p.title, "reason", reason)
	return true, nil
}
