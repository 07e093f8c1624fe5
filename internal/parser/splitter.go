// Package parser provides text splitting for ingestion.
package parser

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Split divides text into chunks of roughly chunkSize characters with
// chunkOverlap characters of overlap, using a recursive character
// splitter. A non-empty separator is tried first, ahead of the default
// paragraph/line/word boundaries; common escape sequences (\n, \t) in it
// are unescaped. Deterministic for fixed inputs.
func Split(text string, chunkSize, chunkOverlap int, separator string) ([]string, error) {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	}

	if separator != "" {
		resolved := strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(separator)
		opts = append(opts, textsplitter.WithSeparators([]string{resolved, "\n\n", "\n", " ", ""}))
	}

	splitter := textsplitter.NewRecursiveCharacter(opts...)
	return splitter.SplitText(text)
}
