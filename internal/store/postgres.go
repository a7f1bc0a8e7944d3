package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"faultline/internal/schema"
)

// Postgres is the durable Store. Frames and responses are stored as JSONB
// documents; the schema is created lazily on first use.
type Postgres struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) ensureSchema(ctx context.Context) error {
	p.schemaOnce.Do(func() {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS inputs (
				input_id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				request_id TEXT NOT NULL,
				raw_text TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS frames (
				frame_id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				payload JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS frames_conversation_idx ON frames (conversation_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS responses (
				request_id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				payload JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS events (
				id BIGSERIAL PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				request_id TEXT NOT NULL,
				endpoint TEXT NOT NULL,
				summary TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS events_conversation_idx ON events (conversation_id, id)`,
		}
		for _, stmt := range stmts {
			if _, err := p.db.ExecContext(ctx, stmt); err != nil {
				p.schemaErr = fmt.Errorf("store: ensure schema: %w", err)
				return
			}
		}
	})
	return p.schemaErr
}

func (p *Postgres) SaveInput(ctx context.Context, conversationID, requestID, rawText string) (string, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return "", err
	}
	inputID := uuid.NewString()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO inputs (input_id, conversation_id, request_id, raw_text) VALUES ($1, $2, $3, $4)`,
		inputID, conversationID, requestID, rawText)
	if err != nil {
		return "", fmt.Errorf("store: save input: %w", err)
	}
	return inputID, nil
}

func (p *Postgres) SaveFrame(ctx context.Context, frame *schema.IncidentFrame) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("store: encode frame: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO frames (frame_id, conversation_id, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (frame_id) DO UPDATE SET payload = EXCLUDED.payload`,
		frame.FrameID, frame.ConversationID, payload)
	if err != nil {
		return fmt.Errorf("store: save frame: %w", err)
	}
	return nil
}

func (p *Postgres) SaveResponse(ctx context.Context, resp *schema.CanonicalResponse) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("store: encode response: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO responses (request_id, conversation_id, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (request_id) DO UPDATE SET payload = EXCLUDED.payload`,
		resp.RequestID, resp.ConversationID, payload)
	if err != nil {
		return fmt.Errorf("store: save response: %w", err)
	}
	return nil
}

func (p *Postgres) SaveEvent(ctx context.Context, event TurnEvent) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO events (conversation_id, request_id, endpoint, summary) VALUES ($1, $2, $3, $4)`,
		event.ConversationID, event.RequestID, event.Endpoint, event.Summary)
	if err != nil {
		return fmt.Errorf("store: save event: %w", err)
	}
	return nil
}

func (p *Postgres) LatestFrame(ctx context.Context, conversationID string) (*schema.IncidentFrame, bool, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM frames WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT 1`,
		conversationID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: latest frame: %w", err)
	}
	var frame schema.IncidentFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, false, fmt.Errorf("store: decode frame: %w", err)
	}
	return &frame, true, nil
}

func (p *Postgres) RecentEvents(ctx context.Context, conversationID string, limit int) ([]TurnEvent, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT conversation_id, request_id, endpoint, summary
		 FROM (SELECT * FROM events WHERE conversation_id = $1 ORDER BY id DESC LIMIT $2) recent
		 ORDER BY id ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	defer rows.Close()
	var events []TurnEvent
	for rows.Next() {
		var e TurnEvent
		if err := rows.Scan(&e.ConversationID, &e.RequestID, &e.Endpoint, &e.Summary); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
