// Package llm wraps the chat completion API used to generate answers
// grounded in retrieved document context.
package llm

import (
	"context"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arkivo-ai/docchat/internal/provider"
	"github.com/arkivo-ai/docchat/pkg/logger"
	"github.com/arkivo-ai/docchat/pkg/retry"
)

// answerPromptTemplate embeds the retrieved context and the question
// verbatim. Its structure is part of the service contract.
const answerPromptTemplate = `You are a helpful AI assistant answering questions based on the provided document context.

Context from the document:
%s

Question: %s

Please provide a clear and accurate answer based solely on the context provided. If the context doesn't contain enough information to answer the question, say so.

Answer:`

// BuildPrompt renders the instructional prompt for a question and context.
func BuildPrompt(question, contextText string) string {
	return fmt.Sprintf(answerPromptTemplate, contextText, question)
}

// TokenStream is a single-pass sequence of answer fragments. Recv returns
// io.EOF after the final fragment; Close releases the upstream connection
// and is the only cancellation guarantee mid-stream.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Config holds configuration for the generation client.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
	Retry          retry.Policy
}

// DefaultConfig returns the default generation configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:         apiKey,
		Model:          "gpt-4o-mini",
		MaxTokens:      1024,
		Temperature:    0.2,
		RequestTimeout: 30 * time.Second,
		Retry:          retry.Default(),
	}
}

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type streamReceiver interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Client generates answers from a question and assembled context.
type Client struct {
	api        chatAPI
	openStream func(ctx context.Context, req openai.ChatCompletionRequest) (streamReceiver, error)
	cfg        Config
	log        *logger.Logger
}

// New creates a generation client.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generation API key is required")
	}
	if log == nil {
		log = logger.Default()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = provider.IsTransientOpenAI
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	api := openai.NewClientWithConfig(clientCfg)

	return &Client{
		api: api,
		openStream: func(ctx context.Context, req openai.ChatCompletionRequest) (streamReceiver, error) {
			return api.CreateChatCompletionStream(ctx, req)
		},
		cfg: cfg,
		log: log.WithComponent("llm"),
	}, nil
}

// Model returns the chat model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// GenerateAnswer produces a single-shot answer for a question given the
// assembled context.
func (c *Client) GenerateAnswer(ctx context.Context, question, contextText string) (string, error) {
	req := c.buildRequest(question, contextText, false)

	var answer string
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		reqCtx := ctx
		if c.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
			defer cancel()
		}

		resp, err := c.api.CreateChatCompletion(reqCtx, req)
		if err != nil {
			c.log.Warn("generation request failed", "error", err)
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no choices returned")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", provider.WrapOpenAI("generate", err)
	}
	return answer, nil
}

// GenerateAnswerStream produces the answer as a token stream. Opening the
// stream is retried like a single-shot call; once open, fragments are
// passed through until the provider signals the end.
func (c *Client) GenerateAnswerStream(ctx context.Context, question, contextText string) (TokenStream, error) {
	req := c.buildRequest(question, contextText, true)

	var stream streamReceiver
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		s, err := c.openStream(ctx, req)
		if err != nil {
			c.log.Warn("opening generation stream failed", "error", err)
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, provider.WrapOpenAI("generate_stream", err)
	}
	return &tokenStream{upstream: stream}, nil
}

func (c *Client) buildRequest(question, contextText string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(question, contextText),
			},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: float32(c.cfg.Temperature),
		Stream:      stream,
	}
}

type tokenStream struct {
	upstream streamReceiver
}

// Recv returns the next non-empty answer fragment, or io.EOF.
func (s *tokenStream) Recv() (string, error) {
	for {
		resp, err := s.upstream.Recv()
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", fmt.Errorf("receive stream fragment: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

// Close closes the upstream connection.
func (s *tokenStream) Close() error {
	return s.upstream.Close()
}
