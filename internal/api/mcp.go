package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aegisguard/aegis/internal/analyst"
	"github.com/aegisguard/aegis/internal/guardian"
	"github.com/aegisguard/aegis/internal/retrieval"
	"github.com/aegisguard/aegis/internal/session"
)

// MCPAnalyst abstracts the worker stage for on-demand analysis.
type MCPAnalyst interface {
	Analyze(ctx context.Context, utterance, rules string, contextTail []string) analyst.Verdict
}

// MCPReviewer abstracts the guardian stage for on-demand analysis.
type MCPReviewer interface {
	Review(ctx context.Context, verdict analyst.Verdict, utterance string) guardian.Reviewed
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Ledger    *session.Ledger
	Retriever SearchRetriever
	Analyst   MCPAnalyst
	Reviewer  MCPReviewer
	Logger    *slog.Logger
}

// NewMCPServer creates an MCP server with the monitoring tools and
// session resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"aegis",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("aegis — live compliance monitor: search the rule index and analyze text for violations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_rules",
			mcp.WithDescription("Semantically search the compliance rule index and return the most relevant passages."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchRules(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_text",
			mcp.WithDescription("Run the full two-stage compliance analysis on a piece of text without recording it in the session."),
			mcp.WithString("text", mcp.Description("The text to analyze"), mcp.Required()),
		),
		mcpAnalyzeText(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"session://transcript",
			"Session Transcript",
			mcp.WithResourceDescription("Everything transcribed in the current monitoring session"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTranscript(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"session://alerts",
			"Session Alerts",
			mcp.WithResourceDescription("Compliance alerts raised in the current monitoring session"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAlerts(deps),
	)

	return s
}

func mcpSearchRules(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		limit := req.GetInt("limit", defaultSearchK)
		if limit < 1 {
			limit = defaultSearchK
		}

		results, err := deps.Retriever.Retrieve(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("rule search failed: %v", err)), nil
		}
		if len(results) > limit {
			results = results[:limit]
		}
		if results == nil {
			results = []retrieval.Result{}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAnalyzeText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		results, err := deps.Retriever.Retrieve(ctx, text)
		if err != nil {
			deps.Logger.Warn("rule retrieval failed for analyze_text", "error", err)
			results = nil
		}
		results = guardian.SanitizeRules(results, deps.Logger)
		rules := retrieval.FormatContext(results)

		verdict := deps.Analyst.Analyze(ctx, text, rules, nil)
		reviewed := deps.Reviewer.Review(ctx, verdict, text)

		b, err := json.Marshal(reviewed)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal verdict: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceTranscript(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap := deps.Ledger.Snapshot(0, 0)
		b, err := json.Marshal(snap.Transcript)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transcript: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceAlerts(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap := deps.Ledger.Snapshot(0, 0)
		b, err := json.Marshal(snap.Alerts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal alerts: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
