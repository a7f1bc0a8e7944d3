// Package store persists conversation history: raw inputs, incident frames,
// responses and a bounded window of turn events. The pipeline only reads
// context from here; lifecycle and expiry belong to the deployment.
package store

import (
	"context"

	"faultline/internal/schema"
)

// TurnEvent is one stored turn summary used to build conversation context
// for later prompts.
type TurnEvent struct {
	ConversationID string
	RequestID      string
	Endpoint       string
	Summary        string
}

// Store is the persistence collaborator. Save calls are fire-and-forget
// from the pipeline's perspective: a storage failure never fails the turn.
type Store interface {
	SaveInput(ctx context.Context, conversationID, requestID, rawText string) (string, error)
	SaveFrame(ctx context.Context, frame *schema.IncidentFrame) error
	SaveResponse(ctx context.Context, resp *schema.CanonicalResponse) error
	SaveEvent(ctx context.Context, event TurnEvent) error

	// LatestFrame returns the most recent frame for a conversation.
	LatestFrame(ctx context.Context, conversationID string) (*schema.IncidentFrame, bool, error)
	// RecentEvents returns up to limit turn summaries, oldest first.
	RecentEvents(ctx context.Context, conversationID string, limit int) ([]TurnEvent, error)
}
