package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/veldtkamp/clipdock/internal/bundle"
	"github.com/veldtkamp/clipdock/internal/export"
	"github.com/veldtkamp/clipdock/internal/queue"
	"github.com/veldtkamp/clipdock/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator *export.Orchestrator
	Jobs         *queue.Processor
}

// NewMCPServer creates an MCP server exposing the export pipeline to agent
// tooling: the same gated pipeline the extension UI uses, nothing more.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"clipdock",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("clipdock — screens, deduplicates, and queues reading clips for hand-off to an external notebook."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("export_note",
			mcp.WithDescription("Run a reading note through the export pipeline. May return a policy refusal reason instead of a job."),
			mcp.WithString("url", mcp.Description("Page URL the note was captured on"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Page title")),
			mcp.WithString("selected_text", mcp.Description("The selected text to clip")),
			mcp.WithString("thought", mcp.Description("Optional authored thought to attach")),
			mcp.WithArray("tags", mcp.Description("Optional tags for notebook routing")),
			mcp.WithBoolean("bypass_pii", mcp.Description("Set after the user approved a pii_warning preview")),
		),
		mcpExportNote(deps),
	)

	s.AddTool(
		mcp.NewTool("list_export_jobs",
			mcp.WithDescription("List export jobs with status, attempts, and retry eligibility."),
		),
		mcpListJobs(deps),
	)

	s.AddTool(
		mcp.NewTool("retry_export_job",
			mcp.WithDescription("Manually re-queue a failed export job."),
			mcp.WithString("job_id", mcp.Description("ID of the job to retry"), mcp.Required()),
		),
		mcpRetryJob(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"clipdock://badge",
			"Export Badge",
			mcp.WithResourceDescription("Aggregated pending/failed export counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBadge(deps),
	)

	return s
}

func mcpExportNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawURL, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}

		note := &bundle.RawNote{
			URL:           rawURL,
			Title:         req.GetString("title", ""),
			SelectedText:  req.GetString("selected_text", ""),
			AtomicThought: req.GetString("thought", ""),
			Tags:          req.GetStringSlice("tags", nil),
		}
		bypass := req.GetBool("bypass_pii", false)

		res, err := deps.Orchestrator.PrepareExport(ctx, note, bypass)
		if err != nil {
			return mcpError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpListJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		views, err := deps.Jobs.JobsForDisplay()
		if err != nil {
			return mcpError(fmt.Sprintf("listing jobs failed: %v", err)), nil
		}
		if views == nil {
			views = []queue.JobView{}
		}
		return mcpJSON(views)
	}
}

func mcpRetryJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		job, err := deps.Jobs.Retry(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("job not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("retry failed: %v", err)), nil
		}
		return mcpJSON(map[string]string{"job_id": job.ID, "status": job.Status})
	}
}

func mcpResourceBadge(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		badge, err := deps.Jobs.BadgeCounts()
		if err != nil {
			return nil, fmt.Errorf("aggregating badge: %w", err)
		}
		data, err := json.Marshal(badge)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func mcpError(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(msg)
}
