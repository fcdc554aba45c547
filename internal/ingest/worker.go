// Package ingest processes content-source jobs: extract text, chunk it,
// embed the chunks, and insert them into the knowledge vector store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/innerpath/coachd/internal/retrieval"
	"github.com/innerpath/coachd/internal/storage"
)

// JobType is the queue type tag for content-source ingestion.
const JobType = "source_ingest"

// SourceStore abstracts the job queue and content source operations.
type SourceStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetContentSource(id string) (storage.ContentSource, error)
	MarkContentSourceReady(id string, chunkCount int) error
	MarkContentSourceFailed(id string, errMsg string) error
}

// ContentEmbedder generates embeddings for text chunks.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts records into the vector store.
type VectorInserter interface {
	Insert(records []retrieval.Record) error
}

// Worker processes source_ingest jobs from the SQLite job queue.
type Worker struct {
	store     SourceStore
	embedder  ContentEmbedder
	vectors   VectorInserter
	extractor *Extractor
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store SourceStore, embedder ContentEmbedder, vectors VectorInserter, extractor *Extractor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		extractor: extractor,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single source_ingest job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	sourceID, procErr := w.processJob(ctx, job)
	if procErr != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", procErr)
		if failErr := w.store.FailJob(job.ID, procErr.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		// Surface the failure on the source once the job is out of retries.
		if sourceID != "" && job.Attempts+1 >= job.MaxAttempts {
			if markErr := w.store.MarkContentSourceFailed(sourceID, procErr.Error()); markErr != nil {
				w.logger.Error("failed to mark source as failed", "source_id", sourceID, "error", markErr)
			}
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type ingestPayload struct {
	ContentSourceID string `json:"content_source_id"`
}

// NewJob builds a queue entry for the given content source.
func NewJob(sourceID string) (storage.Job, error) {
	payload, err := json.Marshal(ingestPayload{ContentSourceID: sourceID})
	if err != nil {
		return storage.Job{}, fmt.Errorf("marshaling job payload: %w", err)
	}
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(payload),
	}, nil
}

// processJob runs the extract/chunk/embed/insert pipeline for one job and
// returns the source ID it worked on (when known) alongside any error.
func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	var payload ingestPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}

	src, err := w.store.GetContentSource(payload.ContentSourceID)
	if err != nil {
		return payload.ContentSourceID, fmt.Errorf("loading content source %s: %w", payload.ContentSourceID, err)
	}

	text, err := w.extractor.Extract(ctx, src)
	if err != nil {
		return src.ID, fmt.Errorf("extracting text: %w", err)
	}

	chunks := retrieval.ChunkText(text, 0, -1)
	if len(chunks) == 0 {
		return src.ID, fmt.Errorf("source %s produced no text", src.ID)
	}

	vecs, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return src.ID, fmt.Errorf("embedding chunks: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			SourceID:   src.ID,
			SourceType: "content_source",
			TextChunk:  chunk,
			Embedding:  vecs[i],
			CreatedAt:  now,
			Tags:       src.Tags,
		}
	}

	if err := w.vectors.Insert(records); err != nil {
		return src.ID, fmt.Errorf("inserting vectors: %w", err)
	}

	if err := w.store.MarkContentSourceReady(src.ID, len(records)); err != nil {
		return src.ID, fmt.Errorf("marking source ready: %w", err)
	}

	return src.ID, nil
}
