package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/localbook/backend/pkg/circuitbreaker"
	"github.com/localbook/backend/pkg/logger"
	"github.com/localbook/backend/pkg/retry"
)

// Client talks to an OpenAI-compatible endpoint (a local Ollama gateway
// in the default deployment) for both embeddings and text generation.
// Every call carries its own timeout and goes through the circuit breaker
// and retry policy.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.DefaultConfig()
	retryConfig.Logger = logger.GetLogger()

	logger.Info("LLM client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}

	var content string
	err := c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
			})
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embeddings [][]float32

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		// Breaker outside retry, as in complete: an open breaker fails
		// the batch at once instead of burning retry attempts on it.
		var out [][]float32
		err := c.cb.Execute(func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(c.embeddingModel),
				})
				if err != nil {
					return fmt.Errorf("failed to generate embeddings: %w", err)
				}
				if len(resp.Data) != len(batch) {
					return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch))
				}
				out = make([][]float32, len(resp.Data))
				for j, data := range resp.Data {
					vec := make([]float32, len(data.Embedding))
					copy(vec, data.Embedding)
					out[j] = vec
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, out...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))
	return embeddings, nil
}

// Answer generates a grounded answer from the retrieved chunk texts. It
// instructs the model to stay within the provided context.
func (c *Client) Answer(ctx context.Context, question string, contextChunks []string) (string, error) {
	systemPrompt := `You are a research assistant. Answer the question using ONLY the provided source excerpts. If the excerpts do not contain the answer, say so plainly. Be concise.`

	var sb strings.Builder
	for i, chunk := range contextChunks {
		sb.WriteString(fmt.Sprintf("[Excerpt %d]\n%s\n\n", i+1, chunk))
	}
	userPrompt := fmt.Sprintf("Source excerpts:\n\n%sQuestion: %s", sb.String(), question)

	answer, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

// Summarize produces a summary of text. The "script" style yields a
// two-speaker dialogue; any other style yields prose.
func (c *Client) Summarize(ctx context.Context, text, style string) (string, error) {
	systemPrompt := `You are a summarization assistant. Produce a faithful, self-contained summary of the provided material. Do not invent facts.`
	if style == "script" {
		systemPrompt += ` Write the summary as a dialogue script between two speakers, HOST and GUEST, discussing the material.`
	}

	userPrompt := fmt.Sprintf("Summarize the following material:\n\n%s", text)

	summary, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}

	logger.Info("Summary generated", zap.Int("summary_length", len(summary)))
	return summary, nil
}
