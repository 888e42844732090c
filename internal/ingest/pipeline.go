// Package ingest drives a source through its lifecycle: acquisition for
// remote origins, extraction, chunking, and indexing. Every admitted run
// ends in a terminal state; no source is left stuck mid-pipeline.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/localbook/backend/internal/broadcast"
	"github.com/localbook/backend/internal/chunk"
	"github.com/localbook/backend/internal/metrics"
	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/pkg/errdefs"
	"github.com/localbook/backend/pkg/logger"
)

// Store is the slice of the source record store the pipeline mutates.
type Store interface {
	GetSource(id string) (*models.Source, error)
	UpdateSourceStatus(id string, status models.SourceStatus, errorMessage string) error
	SetProcessedPath(id, processedPath string) error
	SetSourceKind(id string, kind models.SourceKind) error
}

// Fetcher downloads a remote origin and returns the local payload path.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID, url, destDir string) (string, error)
}

// Extractor converts a payload of the given kind into normalized text.
type Extractor interface {
	Extract(ctx context.Context, kind models.SourceKind, path string) (string, error)
}

// KindDetector re-classifies a payload after acquisition.
type KindDetector func(path string) models.SourceKind

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index stores a source's chunk set, replacing any earlier set.
type Index interface {
	ReplaceSource(ctx context.Context, sourceID string, chunks []models.Chunk) error
}

// CacheInvalidator drops cached answers when the corpus changes. The
// redis cache satisfies it; a nil client is a no-op.
type CacheInvalidator interface {
	InvalidateAnswers(ctx context.Context) error
}

type Config struct {
	UploadsDir   string
	ProcessedDir string
}

type Pipeline struct {
	store       Store
	fetcher     Fetcher
	extractor   Extractor
	detectKind  KindDetector
	embedder    Embedder
	index       Index
	splitter    *chunk.Splitter
	broadcaster *broadcast.Broadcaster
	cache       CacheInvalidator
	cfg         Config
}

func NewPipeline(
	store Store,
	fetcher Fetcher,
	extractor Extractor,
	detectKind KindDetector,
	embedder Embedder,
	index Index,
	splitter *chunk.Splitter,
	broadcaster *broadcast.Broadcaster,
	cache CacheInvalidator,
	cfg Config,
) *Pipeline {
	return &Pipeline{
		store:       store,
		fetcher:     fetcher,
		extractor:   extractor,
		detectKind:  detectKind,
		embedder:    embedder,
		index:       index,
		splitter:    splitter,
		broadcaster: broadcaster,
		cache:       cache,
		cfg:         cfg,
	}
}

// Run drives the source with the given id to a terminal state and only
// returns once it reaches one. The scheduler's per-key dedup keeps two
// runs for the same id from executing concurrently; Run additionally
// refuses sources that are not in the initial state, so a replayed
// admission cannot double-index.
func (p *Pipeline) Run(ctx context.Context, sourceID string) {
	src, err := p.store.GetSource(sourceID)
	if err != nil {
		logger.Error("Source not found for ingestion", zap.String("source_id", sourceID), zap.Error(err))
		return
	}
	if src.Status != models.StatusPending {
		logger.Warn("Ingestion skipped: source is not pending",
			zap.String("source_id", sourceID),
			zap.String("status", string(src.Status)),
		)
		return
	}

	// Whatever happens below, the source must land in a terminal state.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Ingestion panicked",
				zap.String("source_id", sourceID),
				zap.Any("panic", r),
			)
			p.transition(src, models.StatusFailed, fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	logger.Info("Ingestion started",
		zap.String("source_id", sourceID),
		zap.String("kind", string(src.Kind)),
		zap.Bool("remote", src.Remote),
	)
	started := time.Now()

	payloadPath := src.Origin

	if src.Remote {
		if !p.transition(src, models.StatusAcquiring, "") {
			return
		}
		downloaded, err := p.fetcher.Fetch(ctx, sourceID, src.Origin, p.cfg.UploadsDir)
		if err != nil {
			metrics.IngestFailures.WithLabelValues("acquisition").Inc()
			p.transition(src, models.StatusFailed, err.Error())
			return
		}
		payloadPath = downloaded

		// The payload may not be what the URL suggested at registration.
		if kind := p.detectKind(downloaded); kind != src.Kind {
			logger.Info("Source kind re-classified after download",
				zap.String("source_id", sourceID),
				zap.String("was", string(src.Kind)),
				zap.String("now", string(kind)),
			)
			src.Kind = kind
			if err := p.store.SetSourceKind(sourceID, kind); err != nil {
				logger.Warn("Failed to persist re-classified kind", zap.Error(err))
			}
		}
	}

	if !p.transition(src, models.StatusProcessing, "") {
		return
	}

	text, err := p.extractor.Extract(ctx, src.Kind, payloadPath)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("extraction").Inc()
		p.transition(src, models.StatusFailed, err.Error())
		return
	}

	processedPath, err := p.writeArtifact(sourceID, text)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("extraction").Inc()
		p.transition(src, models.StatusFailed, err.Error())
		return
	}
	if err := p.store.SetProcessedPath(sourceID, processedPath); err != nil {
		p.transition(src, models.StatusFailed, fmt.Sprintf("failed to record artifact path: %v", err))
		return
	}

	// Empty text is "nothing to index", not a failure.
	if text != "" {
		if err := p.indexChunks(ctx, sourceID, text); err != nil {
			metrics.IngestFailures.WithLabelValues("indexing").Inc()
			p.transition(src, models.StatusFailed, err.Error())
			return
		}
	}

	p.transition(src, models.StatusCompleted, "")

	// Cached answers were grounded on the old corpus.
	if err := p.cache.InvalidateAnswers(ctx); err != nil {
		logger.Warn("Failed to invalidate answer cache", zap.Error(err))
	}

	metrics.SourcesIngested.Inc()
	metrics.IngestDuration.Observe(time.Since(started).Seconds())
	logger.Info("Ingestion completed",
		zap.String("source_id", sourceID),
		zap.Duration("took", time.Since(started)),
	)
}

func (p *Pipeline) indexChunks(ctx context.Context, sourceID, text string) error {
	texts := p.splitter.Split(text)
	if len(texts) == 0 {
		return nil
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return &errdefs.IndexingError{Err: err}
	}
	if len(embeddings) != len(texts) {
		return &errdefs.IndexingError{
			Err: fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(texts)),
		}
	}

	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{
			SourceID:  sourceID,
			Seq:       i,
			Text:      t,
			Embedding: embeddings[i],
		}
	}

	if err := p.index.ReplaceSource(ctx, sourceID, chunks); err != nil {
		return &errdefs.IndexingError{Err: err}
	}

	metrics.ChunksIndexed.Add(float64(len(chunks)))
	return nil
}

func (p *Pipeline) writeArtifact(sourceID, text string) (string, error) {
	if err := os.MkdirAll(p.cfg.ProcessedDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create processed dir: %w", err)
	}
	path := filepath.Join(p.cfg.ProcessedDir, sourceID+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}

// transition validates the step against the state machine, persists it,
// and publishes the status event. It returns false when the step is
// illegal or cannot be persisted, in which case the run stops.
func (p *Pipeline) transition(src *models.Source, next models.SourceStatus, errorMessage string) bool {
	if !src.Status.CanTransition(next) {
		logger.Error("Illegal state transition rejected",
			zap.String("source_id", src.ID),
			zap.String("from", string(src.Status)),
			zap.String("to", string(next)),
		)
		return false
	}

	if err := p.store.UpdateSourceStatus(src.ID, next, errorMessage); err != nil {
		logger.Error("Failed to persist status transition",
			zap.String("source_id", src.ID),
			zap.String("to", string(next)),
			zap.Error(err),
		)
		return false
	}

	src.Status = next
	if next == models.StatusCompleted {
		src.ErrorMessage = ""
	} else {
		src.ErrorMessage = errorMessage
	}

	p.broadcaster.Publish(models.StatusEvent{
		SourceID:     src.ID,
		Status:       string(next),
		ErrorMessage: src.ErrorMessage,
	})
	return true
}
