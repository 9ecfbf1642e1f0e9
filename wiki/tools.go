package wiki

import (
	"context"
	"strings"
)

// Tool-facing operations. Each wraps the entity layer into a single
// request/response exchange for the MCP surface: business failures come
// back inside the result's Errors map, communication failures as errors.

// GetPage fetches a page and its section table
func (c *Client) GetPage(ctx context.Context, args GetPageArgs) (PageResult, error) {
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return PageResult{}, &ValidationError{Field: "title", Message: "title must not be blank"}
	}

	page, err := NewPage(ctx, c, title)
	if err != nil {
		return PageResult{}, err
	}

	return PageResult{
		Title:    page.Title(),
		Exists:   page.Exists(),
		Invalid:  page.Invalid(),
		Content:  page.Text(),
		Sections: page.Sections(),
		Errors:   page.Errors(),
	}, nil
}

// GetSection fetches a page and extracts one section from it
func (c *Client) GetSection(ctx context.Context, args GetSectionArgs) (SectionResult, error) {
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return SectionResult{}, &ValidationError{Field: "title", Message: "title must not be blank"}
	}

	page, err := NewPage(ctx, c, title)
	if err != nil {
		return SectionResult{}, err
	}

	sel := ParseSelector(args.Section)
	content, found := page.SectionText(sel, args.IncludeHeading, args.IncludeSubsections)
	return SectionResult{
		Title:   page.Title(),
		Section: sel.String(),
		Found:   found,
		Content: content,
		Errors:  page.Errors(),
	}, nil
}

// ListSections fetches a page and returns its section table
func (c *Client) ListSections(ctx context.Context, args ListSectionsArgs) (ListSectionsResult, error) {
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return ListSectionsResult{}, &ValidationError{Field: "title", Message: "title must not be blank"}
	}

	page, err := NewPage(ctx, c, title)
	if err != nil {
		return ListSectionsResult{}, err
	}

	return ListSectionsResult{
		Title:    page.Title(),
		Exists:   page.Exists(),
		Sections: page.Sections(),
		Errors:   page.Errors(),
	}, nil
}

// EditPage writes a page or one of its sections
func (c *Client) EditPage(ctx context.Context, args EditPageArgs) (EditPageResult, error) {
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return EditPageResult{}, &ValidationError{Field: "title", Message: "title must not be blank"}
	}

	if err := c.EnsureLogin(ctx); err != nil {
		return EditPageResult{}, err
	}

	page, err := NewPage(ctx, c, title)
	if err != nil {
		return EditPageResult{}, err
	}
	created := !page.Exists()

	opts := &EditOptions{Summary: args.Summary, Minor: args.Minor}

	var ok bool
	if args.Section != "" {
		ok, err = page.SetSectionText(ctx, ParseSelector(args.Section), args.Content, opts)
	} else {
		ok, err = page.SetText(ctx, args.Content, opts)
	}
	if err != nil {
		return EditPageResult{}, err
	}

	return EditPageResult{
		Success: ok,
		Title:   page.Title(),
		Created: ok && created,
		Errors:  page.Errors(),
	}, nil
}

// DeletePage removes a page
func (c *Client) DeletePage(ctx context.Context, args DeletePageArgs) (DeletePageResult, error) {
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return DeletePageResult{}, &ValidationError{Field: "title", Message: "title must not be blank"}
	}

	if err := c.EnsureLogin(ctx); err != nil {
		return DeletePageResult{}, err
	}

	page, err := NewPage(ctx, c, title)
	if err != nil {
		return DeletePageResult{}, err
	}

	ok, err := page.Delete(ctx, args.Reason)
	if err != nil {
		return DeletePageResult{}, err
	}

	return DeletePageResult{
		Success: ok,
		Title:   page.Title(),
		Errors:  page.Errors(),
	}, nil
}

// GetFileInfo fetches a file's current revision and history
func (c *Client) GetFileInfo(ctx context.Context, args GetFileInfoArgs) (FileInfoResult, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return FileInfoResult{}, &ValidationError{Field: "name", Message: "file name must not be blank"}
	}

	file, err := NewFile(ctx, c, name)
	if err != nil {
		return FileInfoResult{}, err
	}

	result := FileInfoResult{
		Name:    file.Name(),
		Exists:  file.Exists(),
		Invalid: file.Invalid(),
		History: file.History(),
		Errors:  file.Errors(),
	}
	if current, ok := file.Current(); ok {
		result.Current = &current
	}
	return result, nil
}

// DownloadFile saves a file's current revision to a local path
func (c *Client) DownloadFile(ctx context.Context, args DownloadFileArgs) (DownloadFileResult, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" || args.Path == "" {
		return DownloadFileResult{}, &ValidationError{Field: "name/path", Message: "file name and path must not be blank"}
	}

	file, err := NewFile(ctx, c, name)
	if err != nil {
		return DownloadFileResult{}, err
	}

	if err := file.DownloadTo(ctx, args.Path); err != nil {
		return DownloadFileResult{}, err
	}

	errs := file.Errors()
	return DownloadFileResult{
		Name:   file.Name(),
		Saved:  len(errs) == 0,
		Path:   args.Path,
		Size:   file.Size(),
		Errors: errs,
	}, nil
}

// UploadFile sends a new file revision from a local path or a remote URL
func (c *Client) UploadFile(ctx context.Context, args UploadFileArgs) (UploadFileResult, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return UploadFileResult{}, &ValidationError{Field: "name", Message: "file name must not be blank"}
	}

	if err := c.EnsureLogin(ctx); err != nil {
		return UploadFileResult{}, err
	}

	file, err := NewFile(ctx, c, name)
	if err != nil {
		return UploadFileResult{}, err
	}

	ok, err := file.Upload(ctx, UploadOptions{
		Path:      args.Path,
		URL:       args.URL,
		Comment:   args.Comment,
		Text:      args.Text,
		Overwrite: args.Overwrite,
	})
	if err != nil {
		return UploadFileResult{}, err
	}

	return UploadFileResult{
		Success: ok,
		Name:    file.Name(),
		Errors:  file.Errors(),
	}, nil
}

// RevertFile restores an archived file revision
func (c *Client) RevertFile(ctx context.Context, args RevertFileArgs) (RevertFileResult, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" || args.ArchiveName == "" {
		return RevertFileResult{}, &ValidationError{Field: "name/archive_name", Message: "file name and archive name must not be blank"}
	}

	if err := c.EnsureLogin(ctx); err != nil {
		return RevertFileResult{}, err
	}

	file, err := NewFile(ctx, c, name)
	if err != nil {
		return RevertFileResult{}, err
	}

	ok, err := file.Revert(ctx, args.ArchiveName, args.Comment)
	if err != nil {
		return RevertFileResult{}, err
	}

	return RevertFileResult{
		Success: ok,
		Name:    file.Name(),
		Errors:  file.Errors(),
	}, nil
}
