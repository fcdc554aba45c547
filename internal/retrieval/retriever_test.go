package retrieval

import (
	"context"
	"errors"
	"testing"
)

// fakeVectorStore records the Search call and returns canned results.
type fakeVectorStore struct {
	gotVector    []float32
	gotTopK      int
	gotThreshold float32
	results      []ScoredRecord
	err          error
}

func (f *fakeVectorStore) Insert(records []Record) error { return nil }
func (f *fakeVectorStore) Search(vector []float32, topK int, threshold float32) ([]ScoredRecord, error) {
	f.gotVector = vector
	f.gotTopK = topK
	f.gotThreshold = threshold
	return f.results, f.err
}
func (f *fakeVectorStore) Delete(id string) error                    { return nil }
func (f *fakeVectorStore) DeleteBySource(sourceID string) (int, error) { return 0, nil }
func (f *fakeVectorStore) Count() (int, error)                       { return len(f.results), nil }
func (f *fakeVectorStore) ExportAll() ([]Record, error)              { return nil, nil }

func TestRetrieve(t *testing.T) {
	store := &fakeVectorStore{
		results: []ScoredRecord{
			{Record: Record{ID: "r1", SourceID: "s1", SourceType: "content_source", TextChunk: "gratitude"}, Score: 0.9},
			{Record: Record{ID: "r2", SourceID: "s1", SourceType: "content_source", TextChunk: "visualization"}, Score: 0.5},
		},
	}
	r := NewRetriever(NewEmbedder(&fakeEmbeddingClient{}, "m"), store, 0)

	chunks, err := r.Retrieve(context.Background(), "how do I build gratitude", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].ID != "r1" || chunks[0].Text != "gratitude" || chunks[0].Score != 0.9 {
		t.Errorf("chunks[0] = %+v", chunks[0])
	}
	if store.gotTopK != 5 {
		t.Errorf("topK = %d, want 5", store.gotTopK)
	}
	if store.gotThreshold != DefaultThreshold {
		t.Errorf("threshold = %f, want %f", store.gotThreshold, DefaultThreshold)
	}
}

func TestRetrieveCustomThreshold(t *testing.T) {
	store := &fakeVectorStore{}
	r := NewRetriever(NewEmbedder(&fakeEmbeddingClient{}, "m"), store, 0.7)

	if _, err := r.Retrieve(context.Background(), "q", 3); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.gotThreshold != 0.7 {
		t.Errorf("threshold = %f, want 0.7", store.gotThreshold)
	}
}

func TestRetrieveEmbedError(t *testing.T) {
	client := &fakeEmbeddingClient{err: errors.New("upstream down")}
	r := NewRetriever(NewEmbedder(client, "m"), &fakeVectorStore{}, 0)

	if _, err := r.Retrieve(context.Background(), "q", 3); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestRetrieveSearchError(t *testing.T) {
	store := &fakeVectorStore{err: errors.New("db locked")}
	r := NewRetriever(NewEmbedder(&fakeEmbeddingClient{}, "m"), store, 0)

	if _, err := r.Retrieve(context.Background(), "q", 3); err == nil {
		t.Error("expected error, got nil")
	}
}
