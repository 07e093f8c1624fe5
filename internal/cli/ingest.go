package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/kbase-go/internal/models"
	"github.com/raphaelgruber/kbase-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	ingestChunkSize    int
	ingestChunkOverlap int
	ingestSeparator    string
	ingestSource       string
	ingestProvider     string
	ingestModel        string
	ingestWait         bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <kb-name> <file>...",
	Short: "Ingest files into a knowledge base",
	Long: `Ingest files into a knowledge base. Files are split into chunks,
embedded, and written in batches under a tracked job. The command
returns the job id immediately; pass --wait to block until the job
reaches a terminal state.

Examples:
  kbase ingest docs README.md notes.txt
  kbase ingest docs manual.md --chunk-size 500 --chunk-overlap 50 --wait`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 1000, "chunk size in characters")
	ingestCmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", 200, "overlap between adjacent chunks")
	ingestCmd.Flags().StringVar(&ingestSeparator, "separator", "", "split on this separator instead of recursive splitting")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source label stored on every chunk (defaults to each file name)")
	ingestCmd.Flags().StringVar(&ingestProvider, "provider", "", "embedding provider (defaults to the knowledge base's configured provider)")
	ingestCmd.Flags().StringVar(&ingestModel, "model", "", "embedding model (defaults to the knowledge base's configured model)")
	ingestCmd.Flags().BoolVar(&ingestWait, "wait", false, "block until the ingestion job finishes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	kbName := args[0]

	files := make([]service.FileData, 0, len(args)-1)
	for _, path := range args[1:] {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, service.FileData{Name: filepath.Base(path), Content: content})
	}

	provider, model := ingestProvider, ingestModel
	if provider == "" || model == "" {
		info, err := knowledgeService.Get(ctx, kbName)
		if err != nil {
			return err
		}
		if provider == "" {
			provider = info.EmbeddingProvider
		}
		if model == "" {
			model = info.EmbeddingModel
		}
	}

	job, err := ingestService.IngestAsync(ctx, kbName, files, service.IngestOptions{
		ChunkSize:    ingestChunkSize,
		ChunkOverlap: ingestChunkOverlap,
		Separator:    ingestSeparator,
		SourceName:   ingestSource,
		Provider:     provider,
		Model:        model,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Ingestion started: job %s (%d file(s))\n", job.JobID, len(files))
	if !ingestWait {
		fmt.Printf("Watch it with: kbase jobs %s\n", job.JobID)
		return nil
	}

	final, err := waitForJob(ctx, job.JobID.String())
	if err != nil {
		return err
	}
	fmt.Printf("Job %s finished: %s\n", final.JobID, final.Status)
	if final.Status != models.JobStatusCompleted {
		return fmt.Errorf("ingestion ended with status %s", final.Status)
	}
	return nil
}

func waitForJob(ctx context.Context, id string) (*models.Job, error) {
	jobID, err := parseJobID(id)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := jobService.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
