// Package llm wraps model transports behind a text-in/text-out client. The
// pipeline treats every response as untrusted text requiring recovery; no
// transport pre-validates structure.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Result is one raw model response plus transport metadata.
type Result struct {
	Text       string
	ModelID    string
	Provider   string
	TokenUsage TokenUsage
}

// TokenUsage carries coarse token counts for budget and metrics hooks.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Client is the model-invocation collaborator: prompt in, raw text out.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt string) (Result, error)
	Close() error
}

// ErrTransport marks a failed model invocation. The turn fails; retry
// policy, if any, lives in the middleware chain, never in the pipeline.
var ErrTransport = errors.New("llm: transport error")

// PermanentError wraps a transport failure that retrying cannot fix
// (auth, quota exhaustion, malformed request).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("llm: permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// EstimateTokens is the rough chars/4 heuristic used when a transport does
// not report usage.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return len(text) / 4
}
