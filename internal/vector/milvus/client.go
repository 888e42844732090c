package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/pkg/logger"
)

// Client wraps the persistent vector index. Chunks are keyed by source id
// so a source's chunk set can be replaced atomically on re-ingestion and
// similarity search can be restricted to an eligible source set.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type SearchResult struct {
	SourceID string
	Seq      int64
	Text     string
	Score    float32
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Source chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "96"},
			},
			{
				Name:     "source_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "seq",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

// ReplaceSource removes any chunks previously indexed for sourceID, then
// inserts the new set and flushes. Retries therefore replace rather than
// append, and readers never see a mix of old and new chunks after the
// flush returns.
func (m *Client) ReplaceSource(ctx context.Context, sourceID string, chunks []models.Chunk) error {
	expr := fmt.Sprintf(`source_id == "%s"`, sourceID)
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete existing chunks: %w", err)
	}

	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	sourceIDs := make([]string, len(chunks))
	seqs := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = fmt.Sprintf("%s_%d", chunk.SourceID, chunk.Seq)
		sourceIDs[i] = chunk.SourceID
		seqs[i] = int64(chunk.Seq)
		texts[i] = chunk.Text
		embeddings[i] = chunk.Embedding
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("source_id", sourceIDs),
		entity.NewColumnInt64("seq", seqs),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Source chunks indexed",
		zap.String("source_id", sourceID),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// Search returns the topK most similar chunks. A non-empty sourceIDs set
// restricts the search to chunks owned by those sources.
func (m *Client) Search(ctx context.Context, queryEmbedding []float32, topK int, sourceIDs []string) ([]SearchResult, error) {
	expr := ""
	if len(sourceIDs) > 0 {
		quoted := make([]string, len(sourceIDs))
		for i, id := range sourceIDs {
			quoted[i] = fmt.Sprintf("%q", id)
		}
		expr = fmt.Sprintf("source_id in [%s]", strings.Join(quoted, ", "))
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"source_id", "seq", "text"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		sourceCol := sr.Fields.GetColumn("source_id")
		seqCol := sr.Fields.GetColumn("seq")
		textCol := sr.Fields.GetColumn("text")

		for i := 0; i < sr.ResultCount; i++ {
			sourceID, _ := sourceCol.Get(i)
			seq, _ := seqCol.Get(i)
			text, _ := textCol.Get(i)

			results = append(results, SearchResult{
				SourceID: sourceID.(string),
				Seq:      seq.(int64),
				Text:     text.(string),
				Score:    sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)
	return results, nil
}
