// Package retrieval fetches context documents from a vector store at
// query time. Three backends are supported: pinecone (cloud SDK),
// chroma (HTTP collection API), and pgvector (REST sidecar).
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/paddockai/paddock/pkg/config"
)

// Document is one retrieval hit. Score is normalized to [0,1].
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Searcher returns up to topK documents with score >= minScore,
// ordered by descending score.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Document, error)
	Close() error
}

// NewSearcher builds the backend-appropriate searcher for an agent's
// retrieval config.
func NewSearcher(cfg *config.RetrievalConfig, creds config.CredentialsConfig, embedding config.EmbeddingConfig) (Searcher, error) {
	embedder := NewEmbedder(embedding, creds.NativeAPIKey)

	switch cfg.Provider {
	case config.RetrievalPinecone:
		return newPineconeSearcher(cfg, creds.Pinecone, embedder)
	case config.RetrievalChroma:
		return newChromaSearcher(cfg, creds.Chroma, embedder), nil
	case config.RetrievalPgvector:
		return newPgvectorSearcher(cfg, creds.Pgvector, embedder), nil
	default:
		return nil, fmt.Errorf("unsupported retrieval provider '%s'", cfg.Provider)
	}
}

// finalize applies the minScore filter and descending score order all
// backends share.
func finalize(docs []Document, minScore float64) []Document {
	filtered := docs[:0]
	for _, doc := range docs {
		if doc.Score >= minScore {
			filtered = append(filtered, doc)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	return filtered
}

const (
	documentSeparator = "\n\n---\n\n"
	defaultHeader     = "## Relevant Context:\n\n"
)

// FormatContext renders retrieved documents into the prompt section.
// A template substitutes the {{context}} token; without one the
// default header is prepended.
func FormatContext(docs []Document, template string) string {
	contents := make([]string, 0, len(docs))
	for _, doc := range docs {
		contents = append(contents, doc.Content)
	}
	joined := strings.Join(contents, documentSeparator)

	if template != "" {
		return strings.ReplaceAll(template, config.ContextToken, joined)
	}
	return defaultHeader + joined
}
