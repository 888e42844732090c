// Package query answers questions grounded in the indexed corpus. Only
// completed sources are ever searched, so a source mid-ingestion can
// never leak partial chunks into an answer.
package query

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localbook/backend/internal/metrics"
	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/internal/vector/milvus"
	"github.com/localbook/backend/pkg/errdefs"
	"github.com/localbook/backend/pkg/logger"
	"github.com/localbook/backend/pkg/utils"
)

// Store is the slice of the record store the engine reads and, for
// conversations, appends to.
type Store interface {
	ListSources(offset, limit int) ([]models.Source, error)
	GetSourcesByIDs(ids []string) ([]models.Source, error)
	GetConversation(id string) (*models.Conversation, error)
	AppendTurn(turn *models.Turn) error
}

// Embedder produces the question vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Searcher retrieves the nearest chunks, optionally restricted to a
// source set.
type Searcher interface {
	Search(ctx context.Context, queryEmbedding []float32, topK int, sourceIDs []string) ([]milvus.SearchResult, error)
}

// Generator produces the grounded answer text.
type Generator interface {
	Answer(ctx context.Context, question string, contextChunks []string) (string, error)
}

// Cache holds previously computed embeddings and answers. The redis
// client satisfies it; a nil client disables caching.
type Cache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
	GetAnswer(ctx context.Context, answerHash string, response interface{}) (bool, error)
	SetAnswer(ctx context.Context, answerHash string, response interface{}, ttl time.Duration) error
}

type Request struct {
	Question       string   `json:"question"`
	SourceIDs      []string `json:"source_ids,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

type Response struct {
	Answer          string   `json:"answer"`
	CitedSourceIDs  []string `json:"cited_source_ids"`
	RetrievedChunks int      `json:"retrieved_chunks"`
}

type Config struct {
	TopK     int
	CacheTTL time.Duration
}

type Engine struct {
	store     Store
	embedder  Embedder
	searcher  Searcher
	generator Generator
	cache     Cache
	cfg       Config
}

func NewEngine(store Store, embedder Embedder, searcher Searcher, generator Generator, cache Cache, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Engine{
		store:     store,
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		cache:     cache,
		cfg:       cfg,
	}
}

// Answer resolves the grounding set, retrieves chunks, and generates an
// answer. When req.SourceIDs is empty the grounding set is every
// completed source; when it is given, every named source must exist and
// be completed, and the error for violations names all offenders at
// once so the caller can fix them in a single pass.
func (e *Engine) Answer(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()

	eligible, err := e.resolveGrounding(req.SourceIDs)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if req.ConversationID != "" {
		if _, err := e.store.GetConversation(req.ConversationID); err != nil {
			metrics.QueryTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
	}

	answerKey := answerCacheKey(req.Question, eligible)
	var cached Response
	if hit, err := e.cache.GetAnswer(ctx, answerKey, &cached); err == nil && hit {
		if err := e.recordTurns(req, &cached); err != nil {
			return nil, err
		}
		metrics.QueryTotal.WithLabelValues("cached").Inc()
		return &cached, nil
	}

	embedding, err := e.embedQuestion(ctx, req.Question)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, &errdefs.RetrievalError{Err: err}
	}

	results, err := e.searcher.Search(ctx, embedding, e.cfg.TopK, eligible)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, &errdefs.RetrievalError{Err: err}
	}

	contextChunks := make([]string, len(results))
	for i, r := range results {
		contextChunks[i] = r.Text
	}

	answer, err := e.generator.Answer(ctx, req.Question, contextChunks)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, &errdefs.GenerationError{Err: err}
	}

	resp := &Response{
		Answer:          answer,
		CitedSourceIDs:  citedIDs(results),
		RetrievedChunks: len(results),
	}

	if err := e.recordTurns(req, resp); err != nil {
		return nil, err
	}

	if err := e.cache.SetAnswer(ctx, answerKey, resp, e.cfg.CacheTTL); err != nil {
		logger.Warn("Failed to cache answer", zap.Error(err))
	}

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.Observe(time.Since(started).Seconds())
	logger.Info("Question answered",
		zap.Int("retrieved_chunks", len(results)),
		zap.Int("cited_sources", len(resp.CitedSourceIDs)),
		zap.Duration("took", time.Since(started)),
	)
	return resp, nil
}

// resolveGrounding returns the ids the search may touch. The returned
// slice is nil-length only on error; an empty corpus is an error, not
// an unrestricted search.
func (e *Engine) resolveGrounding(requested []string) ([]string, error) {
	if len(requested) == 0 {
		sources, err := e.store.ListSources(0, 0)
		if err != nil {
			return nil, &errdefs.RetrievalError{Err: err}
		}
		var eligible []string
		for _, s := range sources {
			if s.Status == models.StatusCompleted {
				eligible = append(eligible, s.ID)
			}
		}
		if len(eligible) == 0 {
			return nil, &errdefs.RetrievalError{Err: errors.New("no completed sources to ground on")}
		}
		return eligible, nil
	}

	requested = dedupe(requested)
	sources, err := e.store.GetSourcesByIDs(requested)
	if err != nil {
		return nil, &errdefs.RetrievalError{Err: err}
	}

	found := make(map[string]models.Source, len(sources))
	for _, s := range sources {
		found[s.ID] = s
	}

	var notReady []string
	for _, id := range requested {
		src, ok := found[id]
		if !ok {
			return nil, &errdefs.NotFoundError{Resource: "source", ID: id}
		}
		if src.Status != models.StatusCompleted {
			notReady = append(notReady, id)
		}
	}
	if len(notReady) > 0 {
		return nil, &errdefs.NotReadyError{IDs: notReady}
	}
	return requested, nil
}

func (e *Engine) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	textHash := utils.HashString(question)
	if embedding, hit, err := e.cache.GetEmbedding(ctx, textHash); err == nil && hit {
		return embedding, nil
	}

	embedding, err := e.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, textHash, embedding, e.cfg.CacheTTL); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}
	return embedding, nil
}

// recordTurns appends the question and answer to the conversation when
// one was named.
func (e *Engine) recordTurns(req Request, resp *Response) error {
	if req.ConversationID == "" {
		return nil
	}

	now := time.Now().UTC()
	userTurn := &models.Turn{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           models.RoleUser,
		Content:        req.Question,
		CreatedAt:      now,
	}
	if err := e.store.AppendTurn(userTurn); err != nil {
		return err
	}

	assistantTurn := &models.Turn{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           models.RoleAssistant,
		Content:        resp.Answer,
		CitedSourceIDs: resp.CitedSourceIDs,
		CreatedAt:      now,
	}
	return e.store.AppendTurn(assistantTurn)
}

// citedIDs returns the distinct source ids behind the retrieved chunks,
// ordered by first appearance in the ranked results.
func citedIDs(results []milvus.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.SourceID]; ok {
			continue
		}
		seen[r.SourceID] = struct{}{}
		ids = append(ids, r.SourceID)
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func answerCacheKey(question string, sourceIDs []string) string {
	sorted := append([]string(nil), sourceIDs...)
	sort.Strings(sorted)
	return utils.HashString(question + "|" + strings.Join(sorted, ","))
}
