package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/refind-app/refind/internal/config"
)

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report <lost|found>",
	Short: "File a lost or found item report",
	Long: `File a lost or found item report.

Examples:
  refind report lost --title "iPhone 13" --description "Black iPhone 13 with cracked screen" \
    --category electronics --location "Central Park" --email me@example.com
  refind report found --title "Golden retriever" --description "Friendly dog, red collar" \
    --category pets --location "5th Avenue" --email finder@example.com --photo dog.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType := args[0]
		if itemType != "lost" && itemType != "found" {
			return fmt.Errorf("report type must be lost or found, got %q", itemType)
		}

		req := map[string]any{"type": itemType}
		for flag, key := range map[string]string{
			"title":       "title",
			"description": "description",
			"category":    "category",
			"location":    "location",
			"color":       "color",
			"brand":       "brand",
			"size":        "size",
			"name":        "contact_name",
			"email":       "contact_email",
			"phone":       "contact_phone",
			"date":        "date_occurred",
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				req[key] = v
			}
		}
		if tagsStr, _ := cmd.Flags().GetString("tags"); tagsStr != "" {
			tags := strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
			req["tags"] = tags
		}
		if photo, _ := cmd.Flags().GetString("photo"); photo != "" {
			data, err := os.ReadFile(photo)
			if err != nil {
				return fmt.Errorf("reading photo: %w", err)
			}
			req["image_base64"] = base64.StdEncoding.EncodeToString(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/items", req)
		if err != nil {
			return err
		}

		var result struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
			Discovery struct {
				Candidates int `json:"candidates"`
				New        int `json:"new"`
			} `json:"discovery"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Filed %s item %s", itemType, result.Item.ID)
		if result.Discovery.New > 0 {
			printStep("%d new candidate match(es) found, notifications queued", result.Discovery.New)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().String("title", "", "short item title (required)")
	reportCmd.Flags().String("description", "", "detailed description (required)")
	reportCmd.Flags().String("category", "", "item category (required)")
	reportCmd.Flags().String("location", "", "where it was lost or found (required)")
	reportCmd.Flags().String("color", "", "primary color")
	reportCmd.Flags().String("brand", "", "brand or maker")
	reportCmd.Flags().String("size", "", "approximate size")
	reportCmd.Flags().String("tags", "", "comma-separated tags")
	reportCmd.Flags().String("name", "", "contact name")
	reportCmd.Flags().String("email", "", "contact email (required)")
	reportCmd.Flags().String("phone", "", "contact phone")
	reportCmd.Flags().String("date", "", "when it was lost/found, RFC 3339 (default now)")
	reportCmd.Flags().String("photo", "", "path to an item photo for AI analysis")
}

// --- items ---

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List and manage item reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, _ := cmd.Flags().GetString("type")
		status, _ := cmd.Flags().GetString("status")

		path := "/items"
		params := []string{}
		if itemType != "" {
			params = append(params, "type="+itemType)
		}
		if status != "" {
			params = append(params, "status="+status)
		}
		if len(params) > 0 {
			path += "?" + strings.Join(params, "&")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var items []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Title    string `json:"title"`
			Category string `json:"category"`
			Location string `json:"location"`
			Status   string `json:"status"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("no items")
			return nil
		}
		for _, it := range items {
			fmt.Printf("%s  %-5s  %-8s  %s (%s, %s)\n", it.ID, it.Type, it.Status, it.Title, it.Category, it.Location)
		}
		return nil
	},
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an item report and its matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/items/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted item %s", args[0])
		return nil
	},
}

var itemsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Mark an item as recovered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/items/"+args[0]+"/resolve", nil)
		if err != nil {
			return err
		}
		var item map[string]any
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		printSuccess("Resolved item %s", args[0])
		return nil
	},
}

func init() {
	itemsCmd.Flags().String("type", "", "filter by type (lost or found)")
	itemsCmd.Flags().String("status", "", "filter by status (active, matched, resolved)")
	itemsCmd.AddCommand(itemsDeleteCmd)
	itemsCmd.AddCommand(itemsResolveCmd)
}

// --- matches ---

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List and review candidate matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		path := "/matches"
		if status != "" {
			path += "?status=" + status
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var matches []struct {
			ID            string   `json:"id"`
			Score         float64  `json:"score"`
			Status        string   `json:"status"`
			MatchedFields []string `json:"matched_fields"`
		}
		if err := decodeJSON(resp, &matches); err != nil {
			return err
		}

		if len(matches) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, m := range matches {
			fmt.Printf("%s  %.0f%%  %-9s  %s\n", m.ID, m.Score*100, m.Status, strings.Join(m.MatchedFields, ", "))
		}
		return nil
	},
}

var matchesConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm a pending match",
	Args:  cobra.ExactArgs(1),
	RunE:  matchTransitionRunE("confirm", "Confirmed match %s, both items marked matched"),
}

var matchesRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending match",
	Args:  cobra.ExactArgs(1),
	RunE:  matchTransitionRunE("reject", "Rejected match %s"),
}

func matchTransitionRunE(action, successFormat string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/matches/"+args[0]+"/"+action, nil)
		if err != nil {
			return err
		}
		var m map[string]any
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}
		printSuccess(successFormat, args[0])
		return nil
	}
}

func init() {
	matchesCmd.Flags().String("status", "", "filter by status (pending, confirmed, rejected)")
	matchesCmd.AddCommand(matchesConfirmCmd)
	matchesCmd.AddCommand(matchesRejectCmd)
}

// --- discover ---

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a matching pass over all active items now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/discover", nil)
		if err != nil {
			return err
		}
		var result struct {
			Candidates int `json:"candidates"`
			New        int `json:"new"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Discovery done: %d candidate pair(s), %d new match(es)", result.Candidates, result.New)
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show item, match and notification counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}
		var stats any
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
