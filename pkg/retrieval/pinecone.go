package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/paddockai/paddock/pkg/config"
)

// pineconeSearcher queries a cloud pinecone index. The index host is
// resolved with DescribeIndex on first use and cached for the life of
// the searcher.
type pineconeSearcher struct {
	cfg      *config.RetrievalConfig
	client   *pinecone.Client
	embedder *Embedder

	hostMu sync.Mutex
	host   string
}

func newPineconeSearcher(cfg *config.RetrievalConfig, creds config.PineconeConfig, embedder *Embedder) (*pineconeSearcher, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("pinecone API key is required")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: creds.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	return &pineconeSearcher{
		cfg:      cfg,
		client:   client,
		embedder: embedder,
	}, nil
}

func (s *pineconeSearcher) resolveHost(ctx context.Context) (string, error) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()

	if s.host != "" {
		return s.host, nil
	}

	index, err := s.client.DescribeIndex(ctx, s.cfg.Index)
	if err != nil {
		return "", fmt.Errorf("failed to describe index '%s': %w", s.cfg.Index, err)
	}
	s.host = index.Host
	return s.host, nil
}

func (s *pineconeSearcher) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	host, err := s.resolveHost(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := s.client.Index(pinecone.NewIndexConnParams{
		Host:      host,
		Namespace: s.cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index '%s': %w", s.cfg.Index, err)
	}
	defer conn.Close()

	request := &pinecone.QueryByVectorValuesRequest{
		Vector:          embedding,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	}
	if len(s.cfg.Filter) > 0 {
		filter, err := structpb.NewStruct(s.cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata filter: %w", err)
		}
		request.MetadataFilter = filter
	}

	resp, err := conn.QueryByVectorValues(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("pinecone query failed: %w", err)
	}

	docs := make([]Document, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}

		var metadata map[string]any
		if match.Vector.Metadata != nil {
			metadata = match.Vector.Metadata.AsMap()
		}

		docs = append(docs, Document{
			ID:       match.Vector.Id,
			Content:  metadataContent(metadata),
			Score:    float64(match.Score),
			Metadata: metadata,
		})
	}
	return finalize(docs, s.cfg.MinScore), nil
}

func (s *pineconeSearcher) Close() error {
	return nil
}

// metadataContent reads the document text from metadata, preferring
// the content key over text.
func metadataContent(metadata map[string]any) string {
	if content, ok := metadata["content"].(string); ok && content != "" {
		return content
	}
	if text, ok := metadata["text"].(string); ok {
		return text
	}
	return ""
}
