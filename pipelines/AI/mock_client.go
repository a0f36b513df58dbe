package AI

import (
	"context"
	"fmt"
	"sync"
)

// MockClient implements LLMClient with canned responses. Used in tests and
// in deployments running without LLM credentials.
type MockClient struct {
	model string

	mu        sync.Mutex
	responses []string
	next      int
	err       error
	requests  []LLMRequest
}

// NewMockClient creates a mock client
func NewMockClient(config LLMClientConfig) *MockClient {
	model := config.Model
	if model == "" {
		model = "mock-model"
	}
	return &MockClient{model: model}
}

// SetResponses queues the responses returned by subsequent Complete calls.
// The last response repeats once the queue is exhausted.
func (c *MockClient) SetResponses(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = responses
	c.next = 0
}

// SetError makes every subsequent Complete call fail with err
func (c *MockClient) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Requests returns a copy of every request seen so far
func (c *MockClient) Requests() []LLMRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LLMRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Complete returns the next canned response
func (c *MockClient) Complete(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, request)

	if c.err != nil {
		return nil, c.err
	}

	content := "mock narrative"
	if len(c.responses) > 0 {
		if c.next < len(c.responses) {
			content = c.responses[c.next]
			c.next++
		} else {
			content = c.responses[len(c.responses)-1]
		}
	}

	return &LLMResponse{
		Content:      content,
		FinishReason: "stop",
		Model:        c.model,
	}, nil
}

// CompleteSimple returns the next canned response for a bare prompt
func (c *MockClient) CompleteSimple(ctx context.Context, prompt string) (string, error) {
	response, err := c.Complete(ctx, LLMRequest{
		Messages: []LLMMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// GetProvider returns the provider type
func (c *MockClient) GetProvider() LLMProvider {
	return ProviderMock
}

// GetDefaultModel returns the default model
func (c *MockClient) GetDefaultModel() string {
	return c.model
}

// ValidateConfig validates the client configuration
func (c *MockClient) ValidateConfig() error {
	if c.model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}
