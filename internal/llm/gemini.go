package llm

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("llm: init gemini client: %w", err)
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// Generate sends the prompt and returns the raw response text. The response
// is requested as application/json but never trusted to be valid JSON.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (Result, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("%w: empty candidate", ErrTransport)
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	usage := TokenUsage{
		InputTokens:  EstimateTokens(prompt),
		OutputTokens: EstimateTokens(text),
	}
	if meta := resp.UsageMetadata; meta != nil {
		usage.InputTokens = int(meta.PromptTokenCount)
		usage.OutputTokens = int(meta.CandidatesTokenCount)
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	return Result{
		Text:       text,
		ModelID:    g.model,
		Provider:   "gemini",
		TokenUsage: usage,
	}, nil
}
