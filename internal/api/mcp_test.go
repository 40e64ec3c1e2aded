package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/refind-app/refind/internal/engine"
	"github.com/refind-app/refind/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:  store,
		Engine: engine.New(store),
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func mcpItemArgs(itemType string) map[string]interface{} {
	return map[string]interface{}{
		"type":          itemType,
		"title":         "iPhone 13",
		"description":   "Black iPhone 13 with cracked screen and blue case",
		"category":      "electronics",
		"location":      "Central Park",
		"color":         "black",
		"brand":         "Apple",
		"contact_email": itemType + "@example.com",
		"date_occurred": "2026-03-10T12:00:00Z",
	}
}

// --- tests ---

func TestMCPTool_ReportItem(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpReportItem(deps)

	args := mcpItemArgs(storage.TypeLost)
	args["tags"] = []string{"phone", "urgent"}
	result, err := handler(context.Background(), makeCallToolRequest("report_item", args))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, "Filed lost item") {
		t.Fatalf("unexpected response: %s", text)
	}
	if !strings.Contains(text, "0 new match(es)") {
		t.Fatalf("a lone lost report cannot match, got: %s", text)
	}

	items, err := store.ListItems(storage.TypeLost, "")
	if err != nil {
		t.Fatalf("listing items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Category != "electronics" {
		t.Fatalf("unexpected category: %s", items[0].Category)
	}
	var tags []string
	if err := json.Unmarshal([]byte(items[0].Tags), &tags); err != nil {
		t.Fatalf("parsing tags: %v", err)
	}
	if len(tags) != 2 || tags[0] != "phone" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestMCPTool_ReportItem_DiscoversCounterpart(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpReportItem(deps)

	if _, err := handler(context.Background(), makeCallToolRequest("report_item", mcpItemArgs(storage.TypeLost))); err != nil {
		t.Fatalf("filing lost item: %v", err)
	}

	args := mcpItemArgs(storage.TypeFound)
	args["date_occurred"] = "2026-03-11T12:00:00Z"
	result, err := handler(context.Background(), makeCallToolRequest("report_item", args))
	if err != nil {
		t.Fatalf("filing found item: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "1 new match(es)") {
		t.Fatalf("expected a new match, got: %s", text)
	}

	matches, err := store.ListMatches("")
	if err != nil {
		t.Fatalf("listing matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Status != storage.MatchPending {
		t.Fatalf("expected pending match, got %s", matches[0].Status)
	}
}

func TestMCPTool_ReportItem_Validation(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpReportItem(deps)

	cases := []struct {
		name   string
		mutate func(args map[string]interface{})
	}{
		{"bad type", func(args map[string]interface{}) { args["type"] = "stolen" }},
		{"missing title", func(args map[string]interface{}) { delete(args, "title") }},
		{"missing contact email", func(args map[string]interface{}) { delete(args, "contact_email") }},
		{"bad date", func(args map[string]interface{}) { args["date_occurred"] = "yesterday" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := mcpItemArgs(storage.TypeLost)
			tc.mutate(args)
			result, err := handler(context.Background(), makeCallToolRequest("report_item", args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected error result, got: %s", toolText(t, result))
			}
		})
	}
}

func TestMCPTool_SearchItems(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	phone := storage.Item{
		ID:           "item-phone",
		Type:         storage.TypeLost,
		Title:        "iPhone 13",
		Description:  "Black iPhone with cracked screen",
		Category:     "electronics",
		Location:     "Central Park",
		Tags:         "[]",
		Status:       storage.StatusActive,
		ContactEmail: "alex@example.com",
		DateOccurred: time.Now().UTC(),
		DateReported: time.Now().UTC(),
	}
	wallet := phone
	wallet.ID = "item-wallet"
	wallet.Type = storage.TypeFound
	wallet.Title = "Brown wallet"
	wallet.Description = "Leather wallet with cash inside"
	wallet.Category = "accessories"
	for _, it := range []storage.Item{phone, wallet} {
		if err := store.SaveItem(it); err != nil {
			t.Fatalf("saving item: %v", err)
		}
	}

	handler := mcpSearchItems(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search_items", map[string]interface{}{
		"query": "cracked iphone screen",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var hits []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &hits); err != nil {
		t.Fatalf("parsing results: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ID != "item-phone" {
		t.Fatalf("expected item-phone, got %s", hits[0].ID)
	}
	if hits[0].Score <= 0 {
		t.Fatalf("expected positive score, got %f", hits[0].Score)
	}

	// A type filter that excludes the only hit yields an empty array.
	result, err = handler(context.Background(), makeCallToolRequest("search_items", map[string]interface{}{
		"query": "cracked iphone screen",
		"type":  storage.TypeFound,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}

	// Same for a category filter.
	result, err = handler(context.Background(), makeCallToolRequest("search_items", map[string]interface{}{
		"query":    "cracked iphone screen",
		"category": "jewelry",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_SearchItems_NoSearchableTerms(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSearchItems(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_items", map[string]interface{}{
		"query": "the a of",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result, got: %s", toolText(t, result))
	}
}

func TestMCPTool_ListMatches(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpListMatches(deps)

	for _, it := range []storage.Item{
		{ID: "lost-1", Type: storage.TypeLost, Title: "a", Tags: "[]", Status: storage.StatusActive, ContactEmail: "a@example.com", DateOccurred: time.Now().UTC(), DateReported: time.Now().UTC()},
		{ID: "found-1", Type: storage.TypeFound, Title: "b", Tags: "[]", Status: storage.StatusActive, ContactEmail: "b@example.com", DateOccurred: time.Now().UTC(), DateReported: time.Now().UTC()},
	} {
		if err := store.SaveItem(it); err != nil {
			t.Fatalf("saving item: %v", err)
		}
	}
	if _, err := store.SaveMatchIfAbsent(storage.Match{
		ID:            "lost-1:found-1",
		LostItemID:    "lost-1",
		FoundItemID:   "found-1",
		Score:         0.8,
		MatchedFields: `["category","location"]`,
		Status:        storage.MatchPending,
		DateMatched:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("saving match: %v", err)
	}

	result, err := handler(context.Background(), makeCallToolRequest("list_matches", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var views []matchView
	if err := json.Unmarshal([]byte(toolText(t, result)), &views); err != nil {
		t.Fatalf("parsing matches: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 match, got %d", len(views))
	}
	if views[0].ID != "lost-1:found-1" {
		t.Fatalf("unexpected match ID: %s", views[0].ID)
	}
	if len(views[0].MatchedFields) != 2 {
		t.Fatalf("unexpected matched fields: %v", views[0].MatchedFields)
	}

	// Filter by a status with no matches.
	result, err = handler(context.Background(), makeCallToolRequest("list_matches", map[string]interface{}{
		"status": storage.MatchConfirmed,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_Stats(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpStats(deps)

	if err := store.SaveItem(storage.Item{
		ID: "lost-1", Type: storage.TypeLost, Title: "a", Tags: "[]",
		Status: storage.StatusActive, ContactEmail: "a@example.com",
		DateOccurred: time.Now().UTC(), DateReported: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("saving item: %v", err)
	}

	result, err := handler(context.Background(), makeCallToolRequest("lost_and_found_stats", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var stats storage.Stats
	if err := json.Unmarshal([]byte(toolText(t, result)), &stats); err != nil {
		t.Fatalf("parsing stats: %v", err)
	}
	if stats.LostItems != 1 {
		t.Fatalf("expected 1 lost item, got %d", stats.LostItems)
	}
	if stats.TotalMatches != 0 {
		t.Fatalf("expected 0 matches, got %d", stats.TotalMatches)
	}
}

func TestMCPResource_PendingMatches(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	for _, it := range []storage.Item{
		{ID: "lost-1", Type: storage.TypeLost, Title: "a", Tags: "[]", Status: storage.StatusActive, ContactEmail: "a@example.com", DateOccurred: time.Now().UTC(), DateReported: time.Now().UTC()},
		{ID: "found-1", Type: storage.TypeFound, Title: "b", Tags: "[]", Status: storage.StatusActive, ContactEmail: "b@example.com", DateOccurred: time.Now().UTC(), DateReported: time.Now().UTC()},
	} {
		if err := store.SaveItem(it); err != nil {
			t.Fatalf("saving item: %v", err)
		}
	}
	if _, err := store.SaveMatchIfAbsent(storage.Match{
		ID:            "lost-1:found-1",
		LostItemID:    "lost-1",
		FoundItemID:   "found-1",
		Score:         0.75,
		MatchedFields: `["category"]`,
		Status:        storage.MatchPending,
		DateMatched:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("saving match: %v", err)
	}

	handler := mcpResourcePendingMatches(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("lostfound://matches/pending"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var views []matchView
	if err := json.Unmarshal([]byte(tc.Text), &views); err != nil {
		t.Fatalf("parsing matches: %v", err)
	}
	if len(views) != 1 || views[0].Status != storage.MatchPending {
		t.Fatalf("unexpected resource payload: %s", tc.Text)
	}
}
