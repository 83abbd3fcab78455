package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type logEvent struct {
	JobID     string `json:"job_id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// LogsCmd returns the logs command
func LogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Stream a job's progress log until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
}

func runLogs(cmd *cobra.Command, args []string) error {
	apiClient, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}
	return tailJobLogs(apiClient, args[0])
}

func tailJobLogs(apiClient *APIClient, jobID string) error {
	stream, err := apiClient.Stream("/jobs/" + jobID + "/logs")
	if err != nil {
		return err
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev logEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		fmt.Printf("[%s] %s\n", ev.Level, ev.Message)
	}
	return scanner.Err()
}
