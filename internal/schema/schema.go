// Package schema defines the record types exchanged between the evidence
// extractor, the guardrail engine and the orchestration pipeline.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// EvidenceEntry is an addressable, content-hashed span of source material.
// Line numbers are 1-indexed and inclusive. ExcerptHash is the sha256 of the
// exact original-case excerpt text, so later re-identification by hash never
// trusts a caller-supplied index.
type EvidenceEntry struct {
	SourceType  string `json:"source_type"` // log | tool-output
	SourceID    string `json:"source_id"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	ExcerptHash string `json:"excerpt_hash"`
	Excerpt     string `json:"excerpt,omitempty"`
}

// Signature returns the identity tuple used for citation validation.
func (e EvidenceEntry) Signature() string {
	return e.SourceType + ":" + e.SourceID + ":" + strconv.Itoa(e.LineStart) + ":" + strconv.Itoa(e.LineEnd) + ":" + e.ExcerptHash
}

// HashExcerpt computes the content digest used for EvidenceEntry.ExcerptHash.
func HashExcerpt(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// TimeWindow bounds the timestamps observed in one raw input.
type TimeWindow struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// FailureDomain is the closed set of suspected failure domains.
type FailureDomain string

const (
	DomainPerformance FailureDomain = "performance"
	DomainSecurity    FailureDomain = "security"
	DomainNetwork     FailureDomain = "network"
	DomainApplication FailureDomain = "application"
	DomainNone        FailureDomain = ""
)

// IncidentFrame is the structured distillation of one raw input. It is
// immutable after creation except for Merge.
type IncidentFrame struct {
	FrameID         string    `json:"frame_id"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	RequestID       string    `json:"request_id"`
	Source          string    `json:"source"`
	ParserVersion   string    `json:"parser_version"`
	ParseConfidence float64   `json:"parse_confidence"`
	CreatedAt       time.Time `json:"created_at"`

	PrimaryErrorSignature  string          `json:"primary_error_signature,omitempty"`
	SecondarySignatures    []string        `json:"secondary_signatures,omitempty"`
	TimeWindow             *TimeWindow     `json:"time_window,omitempty"`
	Services               []string        `json:"services,omitempty"`
	InfraComponents        []string        `json:"infra_components,omitempty"`
	SuspectedFailureDomain FailureDomain   `json:"suspected_failure_domain,omitempty"`
	EvidenceMap            []EvidenceEntry `json:"evidence_map"`
}

// Hypothesis is a candidate explanation proposed by the model. Citations are
// lookup keys into a frame's evidence map, never live links.
type Hypothesis struct {
	ID          string          `json:"id"`
	Rank        int             `json:"rank"`
	Confidence  float64         `json:"confidence"`
	Explanation string          `json:"explanation"`
	Citations   []EvidenceEntry `json:"citations"`
}

// GuardrailReport records the mutations one guardrail pass applied. It is
// emitted as response metadata, never persisted as domain state.
type GuardrailReport struct {
	CitationMissingCount int      `json:"citation_missing_count"`
	Redactions           int      `json:"redactions"`
	Issues               []string `json:"issues,omitempty"`
}

// RunbookStep is one remediation step in a canonical response.
type RunbookStep struct {
	StepNumber           int    `json:"step_number"`
	Description          string `json:"description"`
	CommandOrConsolePath string `json:"command_or_console_path,omitempty"`
	EstimatedTimeMins    int    `json:"estimated_time_mins,omitempty"`
}

// CanonicalResponse is the structured answer for one turn.
type CanonicalResponse struct {
	RequestID      string            `json:"request_id"`
	Timestamp      time.Time         `json:"timestamp"`
	Hypotheses     []Hypothesis      `json:"hypotheses"`
	RunbookSteps   []RunbookStep     `json:"runbook_steps"`
	ProposedFix    string            `json:"proposed_fix,omitempty"`
	RiskNotes      []string          `json:"risk_notes,omitempty"`
	Rollback       []string          `json:"rollback,omitempty"`
	NextChecks     []string          `json:"next_checks,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

// TriageRequest is the inbound payload for a triage turn.
type TriageRequest struct {
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Source         string `json:"source,omitempty"`
	RawText        string `json:"raw_text"`
}

// ExplainRequest is the inbound payload for a follow-up question.
type ExplainRequest struct {
	RequestID      string         `json:"request_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Question       string         `json:"question"`
	IncidentFrame  *IncidentFrame `json:"incident_frame,omitempty"`
}

// StatusResponse reports service health.
type StatusResponse struct {
	Status       string    `json:"status"`
	Dependencies []string  `json:"dependencies"`
	Timestamp    time.Time `json:"timestamp"`
}
