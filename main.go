// Wikimate MCP Server - a Model Context Protocol server over a MediaWiki
// wiki, built on the Wikimate access layer: section-addressed reads,
// guarded edits, and file transfer with transparent lag backoff.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nineff/Wikimate/metrics"
	"github.com/nineff/Wikimate/tracing"
	"github.com/nineff/Wikimate/wiki"
)

// recoverPanic wraps a handler with panic recovery so a bad response
// shape cannot crash the server
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		metrics.PanicsRecovered.WithLabelValues(operation).Inc()
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

const (
	ServerName    = "wikimate"
	ServerVersion = "1.0.0"
)

func main() {
	// Logging goes to stderr; stdout carries the MCP protocol
	level := slog.LevelInfo
	if os.Getenv("WIKIMATE_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	config, err := wiki.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	client := wiki.NewClient(config, logger)
	defer client.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger: logger,
		Instructions: `Wikimate MCP Server provides tools for working with a MediaWiki wiki.

Available tools:
- wiki_get_page: Get page content with its section table
- wiki_get_section: Extract one section of a page by number or heading name
- wiki_list_sections: List a page's sections (offset, length, depth, name)
- wiki_edit_page: Create or edit a page or a single section (requires authentication)
- wiki_delete_page: Delete a page (requires authentication)
- wiki_get_file_info: Get an uploaded file's current revision and history
- wiki_download_file: Save an uploaded file locally
- wiki_upload_file: Upload a file from a local path or remote URL (requires authentication)
- wiki_revert_file: Restore an archived file revision (requires authentication)
- wiki_login: Authenticate the session with the configured bot credentials

Configure via environment variables:
- WIKIMATE_API_URL: Wiki API URL (e.g., https://wiki.example.com/api.php)
- WIKIMATE_USERNAME: Bot username (for editing)
- WIKIMATE_PASSWORD: Bot password (for editing)`,
	})

	registerTools(server, client, logger)

	logger.Info("Starting Wikimate MCP Server",
		"name", ServerName,
		"version", ServerVersion,
		"wiki_url", config.APIURL,
	)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// toolHandler wraps a client method into an MCP handler carrying the
// shared instrumentation: panic recovery, a span with tool attributes,
// and per-call duration/status metrics.
func toolHandler[Args, Result any](
	logger *slog.Logger,
	name, category string,
	method func(context.Context, Args) (Result, error),
) func(context.Context, *mcp.CallToolRequest, Args) (*mcp.CallToolResult, Result, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args Args) (*mcp.CallToolResult, Result, error) {
		defer recoverPanic(logger, name)

		ctx, span := tracing.StartSpan(ctx, "mcp.tool."+name)
		defer span.End()
		tracing.AddToolAttributes(span, name, category)

		start := time.Now()
		result, err := method(ctx, args)
		duration := time.Since(start).Seconds()

		if err != nil {
			tracing.RecordError(span, err)
			metrics.RecordRequest(name, duration, false)
			var zero Result
			return nil, zero, fmt.Errorf("%s failed: %w", name, err)
		}

		metrics.RecordRequest(name, duration, true)
		logger.Info("Tool executed",
			"tool", name,
			"duration_seconds", duration,
		)
		return nil, result, nil
	}
}

func registerTools(server *mcp.Server, client *wiki.Client, logger *slog.Logger) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_page",
		Description: "Retrieve a page's wikitext together with its section table (offset, length, depth, name per section).",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Page",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, toolHandler(logger, "wiki_get_page", "page", client.GetPage))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_section",
		Description: "Extract one section of a page. Address it by number (0 = the text before the first heading), by heading name, and optionally include the heading line and nested subsections.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Section",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, toolHandler(logger, "wiki_get_section", "page", client.GetSection))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_list_sections",
		Description: "List a page's sections in document order. Duplicate heading names are disambiguated with _2, _3, ... suffixes.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "List Sections",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, toolHandler(logger, "wiki_list_sections", "page", client.ListSections))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_edit_page",
		Description: "Create or update a page. With 'section' set, only that section is replaced ('new' appends one). WARNING: without 'section' the whole page is overwritten. Requires WIKIMATE_USERNAME and WIKIMATE_PASSWORD.",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Edit Page",
			ReadOnlyHint:    false,
			DestructiveHint: ptr(true),
			IdempotentHint:  false,
			OpenWorldHint:   ptr(true),
		},
	}, toolHandler(logger, "wiki_edit_page", "edit", client.EditPage))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_delete_page",
		Description: "Delete a page. Requires authentication and delete rights.",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Delete Page",
			ReadOnlyHint:    false,
			DestructiveHint: ptr(true),
			OpenWorldHint:   ptr(true),
		},
	}, toolHandler(logger, "wiki_delete_page", "edit", client.DeletePage))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_get_file_info",
		Description: "Get an uploaded file's current revision (dimensions, size, hash, MIME type, uploader, URL) and its revision history, newest first.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get File Info",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, toolHandler(logger, "wiki_get_file_info", "file", client.GetFileInfo))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_download_file",
		Description: "Download an uploaded file's current revision and save it to a local path.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Download File",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
	}, toolHandler(logger, "wiki_download_file", "file", client.DownloadFile))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_upload_file",
		Description: "Upload a file from a local path or ask the server to fetch it from a remote URL. Set 'overwrite' to replace an existing file. Requires authentication.",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Upload File",
			ReadOnlyHint:    false,
			DestructiveHint: ptr(true),
			OpenWorldHint:   ptr(true),
		},
	}, toolHandler(logger, "wiki_upload_file", "file", client.UploadFile))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_revert_file",
		Description: "Restore an archived file revision by its archive name, as listed in the file history.",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Revert File",
			ReadOnlyHint:    false,
			DestructiveHint: ptr(true),
			OpenWorldHint:   ptr(true),
		},
	}, toolHandler(logger, "wiki_revert_file", "file", client.RevertFile))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wiki_login",
		Description: "Authenticate the session using the configured bot credentials. Editing tools log in on demand; use this to verify credentials up front.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Login",
			ReadOnlyHint:  false,
			OpenWorldHint: ptr(true),
		},
	}, toolHandler(logger, "wiki_login", "session", func(ctx context.Context, args wiki.LoginArgs) (wiki.LoginResult, error) {
		ok, err := client.Login(ctx)
		if err != nil {
			return wiki.LoginResult{}, err
		}
		return wiki.LoginResult{Success: ok, Errors: client.Errors()}, nil
	}))
}

func ptr[T any](v T) *T {
	return &v
}
