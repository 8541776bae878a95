// Package rag answers product and service questions from the knowledge
// base: the query is embedded with OpenAI and matched against stored
// snippets through the match_kb_items Postgres function (pgvector cosine
// similarity).
package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

const (
	matchThreshold = 0.5
	matchCount     = 5
)

type Searcher struct {
	db             *bun.DB
	openaiClient   *openaisdk.Client
	embeddingModel string
}

func NewSearcher(db *bun.DB, openaiClient *openaisdk.Client, embeddingModel string) (*Searcher, error) {
	if db == nil {
		return nil, errors.New("rag: database handle is required")
	}
	if openaiClient == nil {
		return nil, errors.New("rag: openai client is required")
	}
	model := strings.TrimSpace(embeddingModel)
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Searcher{db: db, openaiClient: openaiClient, embeddingModel: model}, nil
}

// Search returns the best-matching knowledge snippets rendered as a
// prompt-ready block. An empty or failed search degrades to a fixed
// notice; the agent treats the knowledge base as advisory.
func (s *Searcher) Search(ctx context.Context, query string) string {
	embedding, err := s.embed(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("knowledge base embedding failed")
		return "The knowledge base is unavailable right now."
	}

	var snippets []string
	err = s.db.NewRaw(
		"SELECT content FROM match_kb_items(?::vector, ?, ?)",
		vectorLiteral(embedding), matchThreshold, matchCount,
	).Scan(ctx, &snippets)
	if err != nil {
		log.Error().Err(err).Msg("knowledge base query failed")
		return "The knowledge base is unavailable right now."
	}
	if len(snippets) == 0 {
		return "No relevant information found in the knowledge base."
	}

	var b strings.Builder
	b.WriteString("Information found:\n")
	for _, snippet := range snippets {
		fmt.Fprintf(&b, "- %s\n", snippet)
	}
	return b.String()
}

func (s *Searcher) embed(ctx context.Context, query string) ([]float64, error) {
	resp, err := s.openaiClient.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(query)},
		Model: s.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("rag: embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}

// vectorLiteral renders the embedding in pgvector's input syntax.
func vectorLiteral(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
