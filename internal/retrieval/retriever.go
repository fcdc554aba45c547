package retrieval

import (
	"context"
	"time"
)

// DefaultThreshold is the minimum cosine similarity for a chunk to be
// considered relevant. Matches the tuning used by the voice pipeline.
const DefaultThreshold float32 = 0.35

// ContextChunk is a retrieved knowledge fragment with its similarity score.
type ContextChunk struct {
	ID         string
	SourceID   string
	SourceType string
	Text       string
	Score      float32
	Tags       string
	CreatedAt  time.Time
}

// Retriever combines embedding and vector search to find relevant knowledge.
type Retriever struct {
	embedder  *Embedder
	store     VectorStore
	threshold float32
}

// NewRetriever creates a Retriever backed by the given Embedder and
// VectorStore. threshold <= 0 selects DefaultThreshold.
func NewRetriever(embedder *Embedder, store VectorStore, threshold float32) *Retriever {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Retriever{embedder: embedder, store: store, threshold: threshold}
}

// Retrieve embeds the query and returns the top-K knowledge chunks above
// the similarity threshold.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ContextChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(vec, topK, r.threshold)
	if err != nil {
		return nil, err
	}

	return scoredToChunks(scored), nil
}

func scoredToChunks(scored []ScoredRecord) []ContextChunk {
	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			ID:         s.ID,
			SourceID:   s.SourceID,
			SourceType: s.SourceType,
			Text:       s.TextChunk,
			Score:      s.Score,
			Tags:       s.Tags,
			CreatedAt:  s.CreatedAt,
		}
	}
	return chunks
}
