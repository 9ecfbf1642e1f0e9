package wiki

// ========== Page Types ==========

type GetPageArgs struct {
	Title string `json:"title" jsonschema:"required,description=Page title to retrieve"`
}

type PageResult struct {
	Title    string            `json:"title"`
	Exists   bool              `json:"exists"`
	Invalid  bool              `json:"invalid"`
	Content  string            `json:"content"`
	Sections []Section         `json:"sections"`
	Errors   map[string]string `json:"errors,omitempty"`
}

type GetSectionArgs struct {
	Title              string `json:"title" jsonschema:"required,description=Page title"`
	Section            string `json:"section" jsonschema:"required,description=Section to extract: a number, a heading name, or 'new'"`
	IncludeHeading     bool   `json:"include_heading,omitempty" jsonschema:"description=Keep the heading line in the extracted text"`
	IncludeSubsections bool   `json:"include_subsections,omitempty" jsonschema:"description=Extend the extraction over nested subsections"`
}

type SectionResult struct {
	Title   string            `json:"title"`
	Section string            `json:"section"`
	Found   bool              `json:"found"`
	Content string            `json:"content,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type ListSectionsArgs struct {
	Title string `json:"title" jsonschema:"required,description=Page title"`
}

type ListSectionsResult struct {
	Title    string            `json:"title"`
	Exists   bool              `json:"exists"`
	Sections []Section         `json:"sections"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// ========== Edit Types ==========

type EditPageArgs struct {
	Title   string `json:"title" jsonschema:"required,description=Page title to edit or create"`
	Content string `json:"content" jsonschema:"required,description=New content in wikitext format"`
	Section string `json:"section,omitempty" jsonschema:"description=Section to replace: a number, a heading name, or 'new' to append a section"`
	Summary string `json:"summary,omitempty" jsonschema:"description=Edit summary explaining the change"`
	Minor   bool   `json:"minor,omitempty" jsonschema:"description=Mark as minor edit"`
}

type EditPageResult struct {
	Success bool              `json:"success"`
	Title   string            `json:"title"`
	Created bool              `json:"created,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type DeletePageArgs struct {
	Title  string `json:"title" jsonschema:"required,description=Page title to delete"`
	Reason string `json:"reason,omitempty" jsonschema:"description=Deletion reason for the log"`
}

type DeletePageResult struct {
	Success bool              `json:"success"`
	Title   string            `json:"title"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ========== File Types ==========

type GetFileInfoArgs struct {
	Name string `json:"name" jsonschema:"required,description=File name with or without the File: prefix"`
}

type FileInfoResult struct {
	Name    string            `json:"name"`
	Exists  bool              `json:"exists"`
	Invalid bool              `json:"invalid"`
	Current *FileRevision     `json:"current,omitempty"`
	History []FileRevision    `json:"history,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type DownloadFileArgs struct {
	Name string `json:"name" jsonschema:"required,description=File name with or without the File: prefix"`
	Path string `json:"path" jsonschema:"required,description=Local path to save the file to"`
}

type DownloadFileResult struct {
	Name   string            `json:"name"`
	Saved  bool              `json:"saved"`
	Path   string            `json:"path,omitempty"`
	Size   int               `json:"size,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

type UploadFileArgs struct {
	Name      string `json:"name" jsonschema:"required,description=Destination file name"`
	Path      string `json:"path,omitempty" jsonschema:"description=Local file to upload"`
	URL       string `json:"url,omitempty" jsonschema:"description=Remote URL for a server-side fetch"`
	Comment   string `json:"comment,omitempty" jsonschema:"description=Upload comment"`
	Text      string `json:"text,omitempty" jsonschema:"description=Initial description page text"`
	Overwrite bool   `json:"overwrite,omitempty" jsonschema:"description=Replace an existing file without warning"`
}

type UploadFileResult struct {
	Success bool              `json:"success"`
	Name    string            `json:"name"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type RevertFileArgs struct {
	Name        string `json:"name" jsonschema:"required,description=File name with or without the File: prefix"`
	ArchiveName string `json:"archive_name" jsonschema:"required,description=Archive name of the revision to restore (from the file history)"`
	Comment     string `json:"comment,omitempty" jsonschema:"description=Revert comment"`
}

type RevertFileResult struct {
	Success bool              `json:"success"`
	Name    string            `json:"name"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ========== Session Types ==========

type LoginArgs struct {
	// Credentials come from the environment
}

type LoginResult struct {
	Success bool              `json:"success"`
	Errors  map[string]string `json:"errors,omitempty"`
}
