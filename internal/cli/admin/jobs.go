package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/revisehq/cardsmith/internal/config"
	"github.com/revisehq/cardsmith/internal/database"
	"github.com/revisehq/cardsmith/internal/repository"
)

// JobsCmd returns the jobs command group for database-level job administration
func JobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Administer processing jobs directly against the database",
	}

	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsSweepCmd())

	return cmd
}

func jobsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE:  runJobsList,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of jobs to show")

	return cmd
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	pool, err := connectPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	jobRepo := repository.NewJobRepository(pool)

	jobList, err := jobRepo.ListRecent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobList) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	for _, job := range jobList {
		fmt.Printf("%s  %-10s  %3d%%  %d/%d chunks  %4d cards  updated %s\n",
			job.ID, job.Status, job.ProgressPercentage,
			job.CompletedChunks, job.TotalChunks, job.TotalCards,
			job.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func jobsSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Requeue processing jobs with a stale heartbeat",
		Args:  cobra.NoArgs,
		RunE:  runJobsSweep,
	}

	cmd.Flags().Duration("older-than", 10*time.Minute, "Heartbeat age beyond which a processing job is considered orphaned")

	return cmd
}

func runJobsSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	pool, err := connectPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	olderThan, _ := cmd.Flags().GetDuration("older-than")
	jobRepo := repository.NewJobRepository(pool)

	ids, err := jobRepo.RequeueStale(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("failed to requeue stale jobs: %w", err)
	}

	if len(ids) == 0 {
		fmt.Println("No stale jobs found")
		return nil
	}

	for _, id := range ids {
		fmt.Printf("requeued %s\n", id)
	}
	return nil
}

func connectPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: 2})
}
