package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
)

const transportAttempts = 3

var transportDelay = 2 * time.Second

// Client talks to an OpenAI-compatible endpoint: /chat/completions with
// json_schema response mode and /embeddings. A single http.Client is reused
// for connection pooling; calls are rate limited and circuit broken.
type Client struct {
	config  *common.LLMConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  arbor.ILogger
}

// NewClient creates a new LLM client
func NewClient(config *common.LLMConfig, logger arbor.ILogger) interfaces.LLMService {
	timeout := time.Duration(config.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	limit := rate.Inf
	if config.RateLimit != "" {
		if interval, err := time.ParseDuration(config.RateLimit); err == nil && interval > 0 {
			limit = rate.Every(interval)
		}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		logger:  logger,
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
	Strict bool                   `json:"strict"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// unwrapSchema strips a {name, strict, schema} envelope so the model
// receives the actual JSON Schema object
func unwrapSchema(schema map[string]interface{}) map[string]interface{} {
	if inner, ok := schema["schema"].(map[string]interface{}); ok {
		if _, hasName := schema["name"]; hasName {
			return inner
		}
	}
	return schema
}

// ExtractStructured runs a schema-constrained chat completion and validates
// the payload against target. Transport failures return err; a payload that
// does not fit the schema returns ExtractionInvalidSchema with the raw
// content for logging.
func (c *Client) ExtractStructured(ctx context.Context, req interfaces.StructuredRequest, target interface{}) (interfaces.ExtractionResult, error) {
	body := chatRequest{
		Model: c.config.ExtractionModel,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserContent},
		},
		Temperature: req.Temperature,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaSpec{
				Name:   req.SchemaName,
				Schema: unwrapSchema(req.Schema),
				Strict: true,
			},
		},
	}

	data, err := c.post(ctx, c.config.BaseURL+"/chat/completions", c.config.APIKey, body)
	if err != nil {
		return interfaces.ExtractionResult{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return interfaces.ExtractionResult{}, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return interfaces.ExtractionResult{}, fmt.Errorf("chat response contained no choices")
	}

	content := []byte(resp.Choices[0].Message.Content)
	if err := json.Unmarshal(content, target); err != nil {
		c.logger.Warn().
			Err(err).
			Str("schema", req.SchemaName).
			Msg("LLM payload does not fit schema")
		return interfaces.ExtractionResult{
			Outcome: interfaces.ExtractionInvalidSchema,
			Raw:     json.RawMessage(content),
		}, nil
	}

	return interfaces.ExtractionResult{
		Outcome: interfaces.ExtractionOK,
		Raw:     json.RawMessage(content),
	}, nil
}

// Embed returns a unit-length vector for the given text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors")
	}
	return vectors[0], nil
}

// EmbedBatch embeds several texts in one request. Vectors come back
// normalized to unit length.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	baseURL := c.config.EmbeddingBaseURL
	if baseURL == "" {
		baseURL = c.config.BaseURL
	}
	apiKey := c.config.EmbeddingAPIKey
	if apiKey == "" {
		apiKey = c.config.APIKey
	}

	body := embeddingRequest{
		Input:      texts,
		Model:      c.config.EmbeddingModel,
		Dimensions: c.config.EmbeddingDimensions,
	}

	data, err := c.post(ctx, baseURL+"/embeddings", apiKey, body)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding endpoint returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding endpoint returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = common.NormalizeVector(item.Embedding)
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimension
func (c *Client) Dimension() int {
	return c.config.EmbeddingDimensions
}

// post sends one JSON request with retry on transient failures. Timeouts
// and HTTP >= 500 are retryable; 4xx is terminal.
func (c *Client) post(ctx context.Context, url, apiKey string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= transportAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doPost(ctx, url, apiKey, payload)
		})
		if err == nil {
			return result.([]byte), nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
		c.logger.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Msg("LLM request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(transportDelay):
		}
	}
	return nil, fmt.Errorf("llm request failed after %d attempts: %w", transportAttempts, lastErr)
}

func (c *Client) doPost(ctx context.Context, url, apiKey string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transientError{err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err}
	}

	if resp.StatusCode >= 500 {
		return nil, &transientError{fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(data, 200))}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request rejected with %d: %s", resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

// transientError marks failures eligible for retry
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	if _, ok := err.(*transientError); ok {
		return true
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func truncate(data []byte, max int) string {
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
