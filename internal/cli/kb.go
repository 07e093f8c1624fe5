package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/kbase-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	createProvider     string
	createModel        string
	createColumnConfig []string
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge bases",
}

var kbCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new knowledge base",
	Long: `Create a knowledge base directory with its embedding configuration.

Examples:
  kbase kb create docs --provider Ollama --model all-minilm:l6-v2
  kbase kb create reports --provider OpenAI --model text-embedding-3-small`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var columns []models.ColumnConfig
		for _, spec := range createColumnConfig {
			// name[:vectorize][:identifier]
			parts := strings.Split(spec, ":")
			col := models.ColumnConfig{Name: parts[0], DataType: "string"}
			for _, flag := range parts[1:] {
				switch flag {
				case "vectorize":
					col.Vectorize = true
				case "identifier":
					col.Identifier = true
				}
			}
			columns = append(columns, col)
		}

		info, err := knowledgeService.Create(context.Background(), args[0], createProvider, createModel, columns)
		if err != nil {
			return err
		}

		fmt.Printf("Created knowledge base %q (id %s)\n", info.DirName, info.ID)
		fmt.Printf("  Embedding: %s / %s\n", info.EmbeddingProvider, info.EmbeddingModel)
		return nil
	},
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge bases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := knowledgeService.List(context.Background())
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No knowledge bases found")
			return nil
		}

		fmt.Printf("%-24s %-10s %-8s %-10s %-24s %s\n", "NAME", "STATUS", "CHUNKS", "SIZE", "MODEL", "LAST JOB")
		for _, info := range infos {
			fmt.Printf("%-24s %-10s %-8d %-10s %-24s %s\n",
				info.DirName, info.Status, info.Chunks, formatSize(info.Size), info.EmbeddingModel, info.LastJobID)
		}
		return nil
	},
}

var kbShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show details for a knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := knowledgeService.Get(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Knowledge base: %s\n", info.DirName)
		fmt.Printf("  ID: %s\n", info.ID)
		fmt.Printf("  Status: %s\n", info.Status)
		fmt.Printf("  Embedding: %s / %s\n", info.EmbeddingProvider, info.EmbeddingModel)
		fmt.Printf("  Chunks: %d\n", info.Chunks)
		fmt.Printf("  Words: %d  Characters: %d  Avg chunk: %.1f\n", info.Words, info.Characters, info.AvgChunkSize)
		fmt.Printf("  Size: %s\n", formatSize(info.Size))
		if info.ChunkSize != nil {
			fmt.Printf("  Split: size=%d", *info.ChunkSize)
			if info.ChunkOverlap != nil {
				fmt.Printf(" overlap=%d", *info.ChunkOverlap)
			}
			if info.Separator != nil {
				fmt.Printf(" separator=%q", *info.Separator)
			}
			fmt.Println()
		}
		if len(info.SourceTypes) > 0 {
			fmt.Printf("  Source types: %s\n", strings.Join(info.SourceTypes, ", "))
		}
		return nil
	},
}

var kbDeleteCmd = &cobra.Command{
	Use:   "delete <name>...",
	Short: "Delete one or more knowledge bases",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if len(args) == 1 {
			if err := knowledgeService.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted knowledge base %q\n", args[0])
			return nil
		}

		result, err := knowledgeService.BulkDelete(ctx, args)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d knowledge base(s)\n", result.DeletedCount)
		if len(result.NotFound) > 0 {
			fmt.Printf("Not found: %s\n", strings.Join(result.NotFound, ", "))
		}
		return nil
	},
}

var kbCancelCmd = &cobra.Command{
	Use:   "cancel <name>",
	Short: "Cancel the running ingestion for a knowledge base",
	Long: `Cancel the latest ingestion job for a knowledge base. Chunks already
written by the cancelled job are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := knowledgeService.CancelIngestion(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Cancelled ingestion job %s\n", job.JobID)
		return nil
	},
}

func init() {
	kbCreateCmd.Flags().StringVar(&createProvider, "provider", "Ollama", "embedding provider")
	kbCreateCmd.Flags().StringVar(&createModel, "model", "all-minilm:l6-v2", "embedding model")
	kbCreateCmd.Flags().StringArrayVar(&createColumnConfig, "column", nil, "column config for tabular sources, name[:vectorize][:identifier]")

	kbCmd.AddCommand(kbCreateCmd)
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbShowCmd)
	kbCmd.AddCommand(kbDeleteCmd)
	kbCmd.AddCommand(kbCancelCmd)
	rootCmd.AddCommand(kbCmd)
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(bytes)/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
