package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/refind-app/refind/internal/engine"
	"github.com/refind-app/refind/internal/match"
	"github.com/refind-app/refind/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Engine *engine.Engine
}

// NewMCPServer creates an MCP server exposing the lost-and-found tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"refind",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("refind: community lost-and-found matching. Report lost or found items, search reports, and review candidate matches."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("report_item",
			mcp.WithDescription("File a lost or found item report and run a matching pass against existing reports."),
			mcp.WithString("type", mcp.Description(`Either "lost" or "found"`), mcp.Required()),
			mcp.WithString("title", mcp.Description("Short item title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Detailed item description"), mcp.Required()),
			mcp.WithString("category", mcp.Description("Item category, e.g. electronics, jewelry, pets"), mcp.Required()),
			mcp.WithString("location", mcp.Description("Where the item was lost or found"), mcp.Required()),
			mcp.WithString("contact_email", mcp.Description("Reporter contact email"), mcp.Required()),
			mcp.WithString("contact_name", mcp.Description("Reporter name")),
			mcp.WithString("color", mcp.Description("Primary color")),
			mcp.WithString("brand", mcp.Description("Brand or maker")),
			mcp.WithString("size", mcp.Description("Approximate size")),
			mcp.WithString("date_occurred", mcp.Description("When it was lost/found, RFC 3339 (default now)")),
			mcp.WithArray("tags", mcp.Description("Optional free-form tags")),
		),
		mcpReportItem(deps),
	)

	s.AddTool(
		mcp.NewTool("search_items",
			mcp.WithDescription("Keyword-search item reports, ranked by text overlap with the query."),
			mcp.WithString("query", mcp.Description("Search terms"), mcp.Required()),
			mcp.WithString("type", mcp.Description(`Filter by "lost" or "found"`)),
			mcp.WithString("category", mcp.Description("Filter by category")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchItems(deps),
	)

	s.AddTool(
		mcp.NewTool("list_matches",
			mcp.WithDescription("List candidate matches between lost and found items, best score first."),
			mcp.WithString("status", mcp.Description(`Filter by "pending", "confirmed" or "rejected"`)),
		),
		mcpListMatches(deps),
	)

	s.AddTool(
		mcp.NewTool("lost_and_found_stats",
			mcp.WithDescription("Summary counts of items, matches and notifications."),
		),
		mcpStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"lostfound://matches/pending",
			"Pending Matches",
			mcp.WithResourceDescription("Candidate matches awaiting review, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePendingMatches(deps),
	)

	return s
}

func mcpReportItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		itemType, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		if itemType != storage.TypeLost && itemType != storage.TypeFound {
			return mcpError(`type must be "lost" or "found"`), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		description, err := req.RequireString("description")
		if err != nil {
			return mcpError("description is required"), nil
		}
		category, err := req.RequireString("category")
		if err != nil {
			return mcpError("category is required"), nil
		}
		location, err := req.RequireString("location")
		if err != nil {
			return mcpError("location is required"), nil
		}
		contactEmail, err := req.RequireString("contact_email")
		if err != nil {
			return mcpError("contact_email is required"), nil
		}

		occurred := time.Now().UTC()
		if raw := req.GetString("date_occurred", ""); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid date_occurred: %v", err)), nil
			}
			occurred = t.UTC()
		}

		tagsJSON := "[]"
		if tags := req.GetStringSlice("tags", nil); len(tags) > 0 {
			b, err := json.Marshal(tags)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal tags: %v", err)), nil
			}
			tagsJSON = string(b)
		}

		item := storage.Item{
			ID:           uuid.New().String(),
			Type:         itemType,
			Title:        title,
			Description:  description,
			Category:     category,
			Location:     location,
			Color:        req.GetString("color", ""),
			Brand:        req.GetString("brand", ""),
			Size:         req.GetString("size", ""),
			Tags:         tagsJSON,
			Status:       storage.StatusActive,
			ContactName:  req.GetString("contact_name", ""),
			ContactEmail: contactEmail,
			DateOccurred: occurred,
			DateReported: time.Now().UTC(),
		}

		result, err := deps.Engine.SubmitItem(ctx, item)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save item: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Filed %s item %s. Discovery found %d candidate pair(s), %d new match(es) recorded.",
			itemType, item.ID, result.Candidates, result.New)), nil
	}
}

func mcpSearchItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		queryKeywords := match.Keywords(query)
		if len(queryKeywords) == 0 {
			return mcpError("query contains no searchable terms"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}
		category := req.GetString("category", "")

		items, err := deps.Store.ListItems(req.GetString("type", ""), "")
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		type searchHit struct {
			ID       string  `json:"id"`
			Type     string  `json:"type"`
			Title    string  `json:"title"`
			Category string  `json:"category"`
			Location string  `json:"location"`
			Status   string  `json:"status"`
			Score    float64 `json:"score"`
		}

		var hits []searchHit
		for _, it := range items {
			if category != "" && !strings.EqualFold(it.Category, category) {
				continue
			}
			text := it.Title + " " + it.Description + " " + it.AIDescription
			score := match.Similarity(queryKeywords, match.Keywords(text))
			if score == 0 {
				continue
			}
			hits = append(hits, searchHit{
				ID:       it.ID,
				Type:     it.Type,
				Title:    it.Title,
				Category: it.Category,
				Location: it.Location,
				Status:   it.Status,
				Score:    score,
			})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > limit {
			hits = hits[:limit]
		}
		if hits == nil {
			hits = []searchHit{}
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListMatches(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		matches, err := deps.Store.ListMatches(req.GetString("status", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list matches: %v", err)), nil
		}

		views := make([]matchView, 0, len(matches))
		for _, m := range matches {
			views = append(views, viewMatch(m))
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal matches: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Store.GetStats()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get stats: %v", err)), nil
		}
		b, err := json.Marshal(stats)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourcePendingMatches(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		matches, err := deps.Store.ListMatches(storage.MatchPending)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending matches: %w", err)
		}

		views := make([]matchView, 0, len(matches))
		for _, m := range matches {
			views = append(views, viewMatch(m))
		}
		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal matches: %w", err)
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
