package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veldtkamp/clipdock/internal/bundle"
	"github.com/veldtkamp/clipdock/internal/export"
	"github.com/veldtkamp/clipdock/internal/queue"
)

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run a reading note through the export pipeline",
	Long: `Run a reading note through the export pipeline.

Examples:
  clipdock export --url https://example.com/post --text "the selected passage"
  clipdock export --url https://example.com/post --text "..." --tags research,go
  clipdock export --url https://example.com/post --text "..." --bypass-pii`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL, _ := cmd.Flags().GetString("url")
		text, _ := cmd.Flags().GetString("text")
		title, _ := cmd.Flags().GetString("title")
		thought, _ := cmd.Flags().GetString("thought")
		tagsStr, _ := cmd.Flags().GetString("tags")
		bypass, _ := cmd.Flags().GetBool("bypass-pii")

		if rawURL == "" {
			return fmt.Errorf("--url is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		note := bundle.RawNote{
			URL:           rawURL,
			Title:         title,
			SelectedText:  text,
			AtomicThought: thought,
			Tags:          tags,
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/export/prepare", map[string]any{
			"note":       note,
			"bypass_pii": bypass,
		})
		if err != nil {
			return err
		}

		var res export.Result
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}

		switch {
		case res.OK:
			printSuccess("Queued clip for %s (job %s)", res.NotebookRef, res.Job.ID)
		case res.Reason == export.ReasonPIIWarning:
			printWarning("Clip looks like it contains personal data.")
			printStatus("Destination", "%s", res.NotebookRef)
			printStatus("Confirm with", "clipdock export confirm %s", res.Nonce)
		default:
			printError("Export refused: %s", res.Reason)
		}
		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <nonce>",
	Short: "Confirm a held export after reviewing the PII warning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/export/confirm", map[string]string{"nonce": args[0]})
		if err != nil {
			return err
		}

		var res export.Result
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}

		if res.OK {
			printSuccess("Queued clip for %s (job %s)", res.NotebookRef, res.Job.ID)
		} else {
			printError("Export refused: %s", res.Reason)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("url", "", "page URL the note was captured on")
	exportCmd.Flags().String("text", "", "selected text to clip")
	exportCmd.Flags().String("title", "", "page title")
	exportCmd.Flags().String("thought", "", "authored thought to attach")
	exportCmd.Flags().String("tags", "", "comma-separated tags")
	exportCmd.Flags().Bool("bypass-pii", false, "skip the PII warning gate")
	exportCmd.AddCommand(confirmCmd)
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the export job queue",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List export jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/jobs")
		if err != nil {
			return err
		}

		var views []queue.JobView
		if err := decodeJSON(resp, &views); err != nil {
			return err
		}

		if len(views) == 0 {
			fmt.Println("no export jobs")
			return nil
		}

		for _, v := range views {
			line := fmt.Sprintf("%s  %-12s  %d/%d  %s  %s",
				v.JobID, v.Status, v.Attempts, v.MaxAttempts,
				v.CreatedAt.Local().Format(time.DateTime), v.NotebookRef)
			if v.LastError != "" {
				line += "  (" + v.LastError + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Manually re-queue a failed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/jobs/"+args[0]+"/retry", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Job %s re-queued", args[0])
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel and remove a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/jobs/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Job %s cancelled", args[0])
		return nil
	},
}

var jobsClearFailedCmd = &cobra.Command{
	Use:   "clear-failed",
	Short: "Remove all failed and exhausted jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/jobs/clear-failed", nil)
		if err != nil {
			return err
		}

		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cleared %d jobs", result["cleared"])
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRetryCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsClearFailedCmd)
}

// --- badge ---

var badgeCmd = &cobra.Command{
	Use:   "badge",
	Short: "Show aggregated queue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/badge")
		if err != nil {
			return err
		}

		var badge queue.Badge
		if err := decodeJSON(resp, &badge); err != nil {
			return err
		}

		printStatus("Pending", "%d", badge.Pending)
		printStatus("Failed", "%d", badge.Failed)
		printStatus("Badge", "%s (%s)", badge.Text, badge.Color)
		return nil
	},
}
