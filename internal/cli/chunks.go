package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/kbase-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	chunksPage   int
	chunksLimit  int
	chunksSearch string
	chunksFull   bool

	previewChunkSize    int
	previewChunkOverlap int
	previewSeparator    string
	previewMaxChunks    int
)

var chunksCmd = &cobra.Command{
	Use:   "chunks <kb-name>",
	Short: "List stored chunks of a knowledge base",
	Long: `List the chunks stored in a knowledge base, paginated and optionally
filtered by a case-insensitive substring search.

Examples:
  kbase chunks docs
  kbase chunks docs --page 2 --limit 20
  kbase chunks docs --search kubernetes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := knowledgeService.ListChunks(context.Background(), args[0], chunksPage, chunksLimit, chunksSearch)
		if err != nil {
			return err
		}

		if page.Total == 0 {
			fmt.Println("No chunks found")
			return nil
		}

		fmt.Printf("Page %d/%d (%d chunks total)\n\n", page.Page, page.TotalPages, page.Total)
		for _, chunk := range page.Chunks {
			source := chunk.Metadata["file_name"]
			index := chunk.Metadata["chunk_index"]
			fmt.Printf("[%s #%s] %d chars\n", source, index, chunk.CharCount)
			fmt.Println(indent(truncate(chunk.Content, chunksFull), "  "))
			fmt.Println()
		}
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <file>...",
	Short: "Preview how files would be chunked",
	Long: `Show how files would be split into chunks without storing anything,
using the same splitter as ingestion.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := make([]service.FileData, 0, len(args))
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			files = append(files, service.FileData{Name: filepath.Base(path), Content: content})
		}

		previews := knowledgeService.PreviewChunks(files, previewChunkSize, previewChunkOverlap, previewSeparator, previewMaxChunks)
		for _, preview := range previews {
			fmt.Printf("%s: ~%d chunk(s)\n", preview.FileName, preview.TotalChunks)
			for _, chunk := range preview.PreviewChunks {
				fmt.Printf("  #%d [%d:%d] %d chars\n", chunk.Index, chunk.Start, chunk.End, chunk.CharCount)
				fmt.Println(indent(truncate(chunk.Content, false), "    "))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	chunksCmd.Flags().IntVar(&chunksPage, "page", 1, "page number")
	chunksCmd.Flags().IntVar(&chunksLimit, "limit", 50, "chunks per page")
	chunksCmd.Flags().StringVar(&chunksSearch, "search", "", "filter chunks containing this text")
	chunksCmd.Flags().BoolVar(&chunksFull, "full", false, "print full chunk content instead of a snippet")
	rootCmd.AddCommand(chunksCmd)

	previewCmd.Flags().IntVar(&previewChunkSize, "chunk-size", 1000, "chunk size in characters")
	previewCmd.Flags().IntVar(&previewChunkOverlap, "chunk-overlap", 200, "overlap between adjacent chunks")
	previewCmd.Flags().StringVar(&previewSeparator, "separator", "", "split on this separator instead of recursive splitting")
	previewCmd.Flags().IntVar(&previewMaxChunks, "max-chunks", 5, "chunks to preview per file")
	rootCmd.AddCommand(previewCmd)
}

func truncate(text string, full bool) string {
	const snippetLen = 200
	if full || len(text) <= snippetLen {
		return text
	}
	return text[:snippetLen] + "..."
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
