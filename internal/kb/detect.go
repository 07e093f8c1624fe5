package kb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/kbase-go/internal/models"
)

// providerPatterns maps a canonical provider name to substrings that
// identify it in config documents left behind by earlier tooling.
// Order matters: earlier entries win when a value matches several.
var providerPatterns = []struct {
	name     string
	patterns []string
}{
	{"OpenAI", []string{"openai", "text-embedding-ada", "text-embedding-3"}},
	{"Azure OpenAI", []string{"azure"}},
	{"HuggingFace", []string{"sentence-transformers", "huggingface", "bert-"}},
	{"Cohere", []string{"cohere", "embed-english", "embed-multilingual"}},
	{"Google", []string{"palm", "gecko", "google"}},
	{"Ollama", []string{"ollama"}},
}

var providerFields = []string{"embedding_provider", "provider", "embedding_model_provider"}

var modelFields = []string{"embedding_model", "model", "embedding_model_name", "model_name"}

var openAIModels = []string{"text-embedding-ada-002", "text-embedding-3-small", "text-embedding-3-large"}

// DetectProvider infers the embedding provider from JSON config files
// in the knowledge base directory. Legacy directories created by other
// tools carry provider hints in assorted shapes; this walks them in
// decreasing order of specificity. Returns Unknown when nothing
// matches.
func DetectProvider(dir string) string {
	for _, doc := range configDocuments(dir, "") {
		for _, field := range providerFields {
			val, ok := doc.fields[field]
			if !ok {
				continue
			}
			lower := strings.ToLower(val)
			for _, entry := range providerPatterns {
				for _, pattern := range entry.patterns {
					if strings.Contains(lower, pattern) {
						return entry.name
					}
				}
			}
			if lower != "" && lower != "unknown" {
				return titleCase(lower)
			}
		}

		for _, entry := range providerPatterns {
			for _, pattern := range entry.patterns {
				if strings.Contains(doc.raw, pattern) {
					return entry.name
				}
			}
		}
	}

	return models.UnknownValue
}

// DetectModel infers the embedding model name from JSON config files,
// skipping the metadata document itself. Returns Unknown when nothing
// matches.
func DetectModel(dir string) string {
	for _, doc := range configDocuments(dir, MetadataFileName) {
		for _, field := range modelFields {
			if val, ok := doc.fields[field]; ok && val != "" && strings.ToLower(val) != "unknown" {
				return val
			}
		}

		if strings.Contains(doc.raw, "openai") {
			for _, model := range openAIModels {
				if strings.Contains(doc.raw, model) {
					return model
				}
			}
		}
	}

	return models.UnknownValue
}

type configDocument struct {
	fields map[string]string
	raw    string // lowercased full document
}

// configDocuments loads every top-level JSON object file in dir except
// skipName, flattening string-convertible top-level values.
func configDocuments(dir, skipName string) []configDocument {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil
	}

	var docs []configDocument
	for _, path := range paths {
		if skipName != "" && filepath.Base(path) == skipName {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			continue
		}

		fields := make(map[string]string, len(obj))
		for k, v := range obj {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case float64, bool:
				fields[k] = strings.ToLower(strings.TrimSpace(jsonScalar(val)))
			}
		}
		docs = append(docs, configDocument{
			fields: fields,
			raw:    strings.ToLower(string(data)),
		})
	}
	return docs
}

// titleCase capitalizes each space-separated word of a provider value
// that matched no known pattern, so "custom provider" renders as
// "Custom Provider".
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func jsonScalar(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
