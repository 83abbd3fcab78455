package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type jobPayload struct {
	ID                 string `json:"id"`
	DocumentID         string `json:"document_id"`
	Source             string `json:"source"`
	Week               string `json:"week"`
	Status             string `json:"status"`
	TotalChunks        int    `json:"total_chunks"`
	CompletedChunks    int    `json:"completed_chunks"`
	CurrentStep        string `json:"current_step"`
	TotalCards         int    `json:"total_cards"`
	ProgressPercentage int    `json:"progress_percentage"`
	Error              string `json:"error"`
	CreatedAt          string `json:"created_at"`
	CompletedAt        string `json:"completed_at"`

	DurationSeconds               int  `json:"duration_seconds"`
	EstimatedTimeRemainingSeconds *int `json:"estimated_time_remaining_seconds"`
}

// ProcessCmd returns the process command
func ProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <document-id>",
		Short: "Start a flashcard generation job for a document",
		Args:  cobra.ExactArgs(1),
		RunE:  runProcess,
	}

	cmd.Flags().String("source", "", "Source tag applied to generated cards")
	cmd.Flags().String("week", "", "Week tag applied to generated cards")
	cmd.Flags().Int("max-pages", 0, "Maximum pages per chunk (default 10)")
	cmd.Flags().Bool("no-overlap", false, "Disable one-page overlap between chunks")
	cmd.Flags().Int("batch-size", 0, "Topics per generation batch (default 3)")
	cmd.Flags().Int("pacing", 0, "Seconds to wait between batches (default 5)")
	cmd.Flags().Bool("watch", false, "Stream job logs after starting")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	apiClient, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	source, _ := cmd.Flags().GetString("source")
	week, _ := cmd.Flags().GetString("week")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	noOverlap, _ := cmd.Flags().GetBool("no-overlap")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	pacing, _ := cmd.Flags().GetInt("pacing")

	overlap := !noOverlap
	body := map[string]interface{}{
		"document_id": args[0],
		"source":      source,
		"week":        week,
		"overlap":     &overlap,
	}
	if maxPages > 0 {
		body["max_pages"] = maxPages
	}
	if batchSize > 0 {
		body["batch_size"] = batchSize
	}
	if pacing != 0 {
		body["pacing_seconds"] = pacing
	}

	resp, err := apiClient.Post("/jobs", body)
	if err != nil {
		return err
	}

	var job jobPayload
	if err := json.Unmarshal(resp.Data, &job); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("Job %s queued (%d chunks)\n", job.ID, job.TotalChunks)

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		return tailJobLogs(apiClient, job.ID)
	}

	fmt.Printf("Track it with: cardsmith status %s\n", job.ID)
	return nil
}
