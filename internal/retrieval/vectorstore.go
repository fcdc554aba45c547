package retrieval

import "time"

// VectorStore is the interface for knowledge vector storage and similarity
// search. The default implementation uses SQLite with brute-force cosine
// similarity, which is fine for a single coach's knowledge base; an
// ANN-capable backend can replace it behind this interface if the corpus
// outgrows brute force.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector
	// whose cosine similarity is at least threshold.
	Search(vector []float32, topK int, threshold float32) ([]ScoredRecord, error)

	// Delete removes a record by ID.
	Delete(id string) error

	// DeleteBySource removes every record ingested from the given source.
	DeleteBySource(sourceID string) (int, error)

	// Count returns the number of stored records.
	Count() (int, error)

	// ExportAll returns all records, for migration between backends.
	ExportAll() ([]Record, error)
}

// Record is a row in the vector store: one embedded text chunk.
type Record struct {
	ID         string
	SourceID   string
	SourceType string
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
	Tags       string // JSON array stored as text
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
