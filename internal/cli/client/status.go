package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const statusPollInterval = 2 * time.Second

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	cmd.Flags().Bool("watch", false, "Poll until the job reaches a terminal state")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	apiClient, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	watch, _ := cmd.Flags().GetBool("watch")
	for {
		job, err := fetchJob(apiClient, args[0])
		if err != nil {
			return err
		}

		printJobStatus(job)

		if !watch || job.Status == "completed" || job.Status == "failed" {
			return nil
		}
		time.Sleep(statusPollInterval)
	}
}

func fetchJob(apiClient *APIClient, jobID string) (*jobPayload, error) {
	resp, err := apiClient.Get("/jobs/" + jobID)
	if err != nil {
		return nil, err
	}

	var job jobPayload
	if err := json.Unmarshal(resp.Data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &job, nil
}

func printJobStatus(job *jobPayload) {
	line := fmt.Sprintf("[%s] %3d%%  %d/%d chunks  %d cards  %s",
		job.Status, job.ProgressPercentage, job.CompletedChunks, job.TotalChunks, job.TotalCards, job.CurrentStep)
	if job.EstimatedTimeRemainingSeconds != nil {
		line += fmt.Sprintf("  (~%ds left)", *job.EstimatedTimeRemainingSeconds)
	}
	fmt.Println(line)

	if job.Status == "failed" && job.Error != "" {
		fmt.Printf("Error: %s\n", job.Error)
	}
}
