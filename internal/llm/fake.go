package llm

import (
	"context"
	"sync"
)

// FakeClient returns scripted responses for offline use and tests. With no
// script it echoes a minimal valid payload.
type FakeClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	Prompts   []string
}

func NewFakeClient(responses ...string) *FakeClient {
	return &FakeClient{responses: responses}
}

// NewFailingFakeClient always fails with err.
func NewFailingFakeClient(err error) *FakeClient {
	return &FakeClient{err: err}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, prompt string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if f.err != nil {
		return Result{}, f.err
	}
	text := `{"hypotheses": []}`
	if len(f.responses) > 0 {
		text = f.responses[0]
		f.responses = f.responses[1:]
	}
	return Result{
		Text:     text,
		ModelID:  "fake-model",
		Provider: "fake",
		TokenUsage: TokenUsage{
			InputTokens:  EstimateTokens(prompt),
			OutputTokens: EstimateTokens(text),
			TotalTokens:  EstimateTokens(prompt) + EstimateTokens(text),
		},
	}, nil
}
