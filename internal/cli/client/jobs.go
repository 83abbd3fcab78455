package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type jobListPayload struct {
	Items []jobPayload `json:"items"`
}

type topicPayload struct {
	Title       string `json:"title"`
	Fingerprint string `json:"fingerprint"`
	ChunkSeq    int    `json:"chunk_seq"`
	CardCount   int    `json:"card_count"`
}

type topicListPayload struct {
	Items []topicPayload `json:"items"`
}

// JobsCmd returns the jobs command group
func JobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect processing jobs",
	}

	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsTopicsCmd())

	return cmd
}

func jobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE:  runJobsList,
	}
}

func runJobsList(cmd *cobra.Command, args []string) error {
	apiClient, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := apiClient.Get("/jobs")
	if err != nil {
		return err
	}

	var list jobListPayload
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(list.Items) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	for _, job := range list.Items {
		fmt.Printf("%s  %-10s  %3d%%  %4d cards  %s\n",
			job.ID, job.Status, job.ProgressPercentage, job.TotalCards, job.CreatedAt)
	}
	return nil
}

func jobsTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics <job-id>",
		Short: "List the topics a job has processed",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsTopics,
	}
}

func runJobsTopics(cmd *cobra.Command, args []string) error {
	apiClient, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := apiClient.Get("/jobs/" + args[0] + "/topics")
	if err != nil {
		return err
	}

	var list topicListPayload
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(list.Items) == 0 {
		fmt.Println("No topics recorded yet")
		return nil
	}

	for _, topic := range list.Items {
		fmt.Printf("chunk %2d  %3d cards  %s\n", topic.ChunkSeq, topic.CardCount, topic.Title)
	}
	return nil
}
