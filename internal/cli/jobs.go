package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kbase-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	jobsFlow string
	jobsPage int
	jobsSize int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "Inspect ingestion jobs",
	Long: `Show a specific job by id, or list jobs for a flow.

Examples:
  kbase jobs 3f1c...            # Show one job
  kbase jobs --flow 9a2e...     # List jobs belonging to a flow`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsFlow, "flow", "", "list jobs for this flow id")
	jobsCmd.Flags().IntVar(&jobsPage, "page", 1, "page number")
	jobsCmd.Flags().IntVar(&jobsSize, "size", 20, "jobs per page")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	if jobsFlow != "" {
		return listFlowJobs(ctx, jobsFlow)
	}
	return fmt.Errorf("pass a job id or --flow")
}

func parseJobID(id string) (uuid.UUID, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	return jobID, nil
}

func listFlowJobs(ctx context.Context, flow string) error {
	flowID, err := uuid.Parse(flow)
	if err != nil {
		return fmt.Errorf("invalid flow id %q: %w", flow, err)
	}

	jobs, err := jobService.ByFlow(ctx, flowID, jobsPage, jobsSize)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s %-12s %-12s %-20s %s\n", "ID", "TYPE", "STATUS", "CREATED", "FINISHED")
	for _, job := range jobs {
		finished := ""
		if job.FinishedTimestamp != nil {
			finished = job.FinishedTimestamp.Format("15:04:05")
		}
		fmt.Printf("%-36s %-12s %-12s %-20s %s\n",
			job.JobID, job.Type, job.Status, job.CreatedTimestamp.Format(time.DateTime), finished)
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	jobID, err := parseJobID(id)
	if err != nil {
		return err
	}

	job, err := jobService.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.JobID)
	fmt.Printf("  Flow: %s\n", job.FlowID)
	fmt.Printf("  Type: %s\n", job.Type)
	fmt.Printf("  Status: %s\n", job.Status)
	if job.AssetID != nil {
		assetType := "asset"
		if job.AssetType != nil {
			assetType = *job.AssetType
		}
		fmt.Printf("  Asset: %s (%s)\n", job.AssetID, assetType)
	}
	fmt.Printf("  Created: %s\n", job.CreatedTimestamp.Format(time.RFC3339))
	if job.FinishedTimestamp != nil {
		fmt.Printf("  Finished: %s\n", job.FinishedTimestamp.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", job.FinishedTimestamp.Sub(job.CreatedTimestamp).Round(time.Second))
	} else if job.Status == models.JobStatusInProgress {
		fmt.Printf("  Running for: %s\n", time.Since(job.CreatedTimestamp).Round(time.Second))
	}
	return nil
}
