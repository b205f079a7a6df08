package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/httpclient"
)

// pgvectorSearcher delegates similarity search to a REST sidecar in
// front of a pgvector database. Without a configured sidecar URL it
// degrades to empty results.
type pgvectorSearcher struct {
	cfg        *config.RetrievalConfig
	sidecarURL string
	embedder   *Embedder
	httpClient *httpclient.Client
}

func newPgvectorSearcher(cfg *config.RetrievalConfig, creds config.PgvectorConfig, embedder *Embedder) *pgvectorSearcher {
	opts := []httpclient.Option{
		httpclient.WithTimeout(30 * time.Second),
	}
	if creds.TLS != nil {
		opts = append(opts, httpclient.WithTLSConfig(&httpclient.TLSConfig{
			InsecureSkipVerify: creds.TLS.InsecureSkipVerify,
			CACertificate:      creds.TLS.CACertificate,
		}))
	}

	return &pgvectorSearcher{
		cfg:        cfg,
		sidecarURL: strings.TrimSuffix(creds.SidecarURL, "/"),
		embedder:   embedder,
		httpClient: httpclient.New(opts...),
	}
}

type pgvectorQueryRequest struct {
	Table     string    `json:"table"`
	Embedding []float32 `json:"embedding"`
	TopK      int       `json:"topK"`
	MinScore  float64   `json:"minScore"`
}

type pgvectorQueryResponse struct {
	Results []Document `json:"results"`
}

func (s *pgvectorSearcher) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	if s.sidecarURL == "" {
		slog.Warn("pgvector sidecar URL not configured, returning no results",
			"index", s.cfg.Index)
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(pgvectorQueryRequest{
		Table:     s.cfg.Index,
		Embedding: embedding,
		TopK:      topK,
		MinScore:  s.cfg.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pgvector query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sidecarURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create pgvector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pgvector query failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read pgvector response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pgvector sidecar error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed pgvectorQueryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse pgvector response: %w", err)
	}
	// The sidecar already applies minScore; keep the ordering contract.
	return finalize(parsed.Results, s.cfg.MinScore), nil
}

func (s *pgvectorSearcher) Close() error {
	return nil
}
