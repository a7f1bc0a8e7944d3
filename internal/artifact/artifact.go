// Package artifact archives the raw text of each turn so an incident can be
// replayed later. Inputs are scrubbed before they reach this package.
package artifact

import (
	"context"
	"errors"
)

// Archive persists per-conversation artifacts. Names are slash-normalized
// paths under the conversation, e.g. "req-123/input.txt".
type Archive interface {
	Put(ctx context.Context, conversationID, name string, content []byte) error
	Get(ctx context.Context, conversationID, name string) ([]byte, error)
	List(ctx context.Context, conversationID string) ([]string, error)
	GetURL(ctx context.Context, conversationID, name string) (string, error)
}

var ErrNotFound = errors.New("artifact not found")
