package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest coach content into the knowledge base",
	Long: `Ingest coach content into the knowledge base.

Examples:
  coachd ingest --text "Gratitude rewires the subconscious mind" --tags mindset
  coachd ingest --url https://example.com/article --tags research
  coachd ingest --file ./workshop-notes.pdf --title "Workshop notes"
  coachd ingest --scrape https://example.com/channel --tags video`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		scrapeURL, _ := cmd.Flags().GetString("scrape")
		title, _ := cmd.Flags().GetString("title")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if text == "" && url == "" && file == "" && scrapeURL == "" {
			return fmt.Errorf("one of --text, --url, --file, or --scrape is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		req := map[string]any{}
		if tags != nil {
			req["tags"] = tags
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case url != "":
			req["type"] = "url"
			req["url"] = url
		case scrapeURL != "":
			req["type"] = "scrape"
			req["url"] = scrapeURL
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if strings.HasSuffix(strings.ToLower(file), ".pdf") {
				req["type"] = "pdf"
				req["content"] = base64.StdEncoding.EncodeToString(data)
			} else {
				req["type"] = "text"
				req["content"] = string(data)
			}
			if title == "" {
				req["title"] = file
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/admin/sources", req)
		if err != nil {
			return err
		}

		var result struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued content source %s", result.ID)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest (.pdf or plain text)")
	ingestCmd.Flags().String("scrape", "", "URL to scrape via the configured actor")
	ingestCmd.Flags().String("title", "", "title for the content source")
	ingestCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage audience users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audience users",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/admin/users?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Users []struct {
				ID                string `json:"id"`
				Email             string `json:"email"`
				Name              string `json:"name"`
				PreferredLanguage string `json:"preferred_language"`
				Status            string `json:"status"`
			} `json:"users"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Users) == 0 {
			fmt.Println("No users found.")
			return nil
		}

		for _, u := range result.Users {
			lang := u.PreferredLanguage
			if lang == "" {
				lang = "-"
			}
			fmt.Printf("%s  %-30s  %-10s  %s\n",
				colorize(colorCyan, u.ID[:8]),
				u.Email,
				lang,
				u.Status,
			)
		}
		return nil
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add an audience user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		lang, _ := cmd.Flags().GetString("language")
		goals, _ := cmd.Flags().GetString("goals")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"email": args[0]}
		if name != "" {
			req["name"] = name
		}
		if lang != "" {
			req["preferred_language"] = lang
		}
		if goals != "" {
			req["goals"] = goals
		}

		resp, err := client.post(cmd.Context(), "/admin/users", req)
		if err != nil {
			return err
		}

		var result struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added user %s", result.ID)
		return nil
	},
}

var usersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single audience user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/admin/users/"+args[0])
		if err != nil {
			return err
		}

		var user any
		if err := decodeJSON(resp, &user); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(user)
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an audience user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/admin/users/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed user %s", args[0])
		return nil
	},
}

func init() {
	usersListCmd.Flags().Int("limit", 50, "maximum number of users to list")
	usersAddCmd.Flags().String("name", "", "user display name")
	usersAddCmd.Flags().String("language", "", "preferred response language")
	usersAddCmd.Flags().String("goals", "", "free-form coaching goals")
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersShowCmd)
	usersCmd.AddCommand(usersRemoveCmd)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage voice sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent voice sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/admin/sessions?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Sessions []struct {
				ID        string `json:"id"`
				UserID    string `json:"user_id"`
				RoomName  string `json:"room_name"`
				Status    string `json:"status"`
				CreatedAt string `json:"created_at"`
			} `json:"sessions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range result.Sessions {
			fmt.Printf("%s  %s  %-8s  %s\n",
				colorize(colorCyan, s.ID[:8]),
				s.CreatedAt,
				s.Status,
				s.RoomName,
			)
		}
		return nil
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create <user-id>",
	Short: "Provision a voice room for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/sessions", map[string]any{"user_id": args[0]})
		if err != nil {
			return err
		}

		var result struct {
			RoomURL   string `json:"room_url"`
			Token     string `json:"token"`
			SessionID string `json:"session_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s", result.SessionID)
		printStatus("Room", "%s", result.RoomURL)
		printStatus("Token", "%s", result.Token)
		return nil
	},
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "End a voice session and delete its room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/sessions/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Ended session %s", args[0])
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsEndCmd)
}

// --- analytics ---

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show entity counts across the system",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/admin/analytics")
		if err != nil {
			return err
		}

		var counts struct {
			AudienceUsers  int `json:"audience_users"`
			ContentSources int `json:"content_sources"`
			ReadySources   int `json:"ready_sources"`
			Integrations   int `json:"integrations"`
			Sessions       int `json:"sessions"`
			Interactions   int `json:"interactions"`
			Vectors        int `json:"vectors"`
		}
		if err := decodeJSON(resp, &counts); err != nil {
			return err
		}

		printStatus("Audience users", "%d", counts.AudienceUsers)
		printStatus("Content sources", "%d (%d ready)", counts.ContentSources, counts.ReadySources)
		printStatus("Integrations", "%d", counts.Integrations)
		printStatus("Sessions", "%d", counts.Sessions)
		printStatus("Interactions", "%d", counts.Interactions)
		printStatus("Knowledge vectors", "%d", counts.Vectors)
		return nil
	},
}
