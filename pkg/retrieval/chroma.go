package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/httpclient"
)

// chromaSearcher queries a chroma collection over its HTTP API.
// Distances come back instead of scores; they are converted with
// 1/(1+d) so minScore works uniformly.
type chromaSearcher struct {
	cfg        *config.RetrievalConfig
	baseURL    string
	embedder   *Embedder
	httpClient *httpclient.Client
}

func newChromaSearcher(cfg *config.RetrievalConfig, creds config.ChromaConfig, embedder *Embedder) *chromaSearcher {
	opts := []httpclient.Option{
		httpclient.WithTimeout(30 * time.Second),
	}
	if creds.TLS != nil {
		opts = append(opts, httpclient.WithTLSConfig(&httpclient.TLSConfig{
			InsecureSkipVerify: creds.TLS.InsecureSkipVerify,
			CACertificate:      creds.TLS.CACertificate,
		}))
	}

	return &chromaSearcher{
		cfg:        cfg,
		baseURL:    strings.TrimSuffix(creds.BaseURL, "/"),
		embedder:   embedder,
		httpClient: httpclient.New(opts...),
	}
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
}

type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Distances [][]float64        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

func (s *chromaSearcher) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chroma query: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/query", s.baseURL, s.cfg.Index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chroma query failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chroma response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chroma API error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed chromaQueryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chroma response: %w", err)
	}
	if len(parsed.IDs) == 0 {
		return nil, nil
	}

	// Results come back as parallel arrays, one inner slice per query
	// embedding. Only one is sent.
	ids := parsed.IDs[0]
	docs := make([]Document, 0, len(ids))
	for i, id := range ids {
		doc := Document{ID: id}
		if len(parsed.Documents) > 0 && i < len(parsed.Documents[0]) {
			doc.Content = parsed.Documents[0][i]
		}
		if len(parsed.Distances) > 0 && i < len(parsed.Distances[0]) {
			doc.Score = 1 / (1 + parsed.Distances[0][i])
		}
		if len(parsed.Metadatas) > 0 && i < len(parsed.Metadatas[0]) {
			doc.Metadata = parsed.Metadatas[0][i]
		}
		docs = append(docs, doc)
	}
	return finalize(docs, s.cfg.MinScore), nil
}

func (s *chromaSearcher) Close() error {
	return nil
}
