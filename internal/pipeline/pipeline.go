// Package pipeline orchestrates one troubleshooting turn: evidence
// extraction, model invocation, structure recovery, citation normalization
// and guardrail enforcement, in that order. A turn either emits a canonical
// response or fails with a typed error; there is no partial output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"faultline/internal/artifact"
	"faultline/internal/evidence"
	"faultline/internal/guardrail"
	"faultline/internal/llm"
	"faultline/internal/observability"
	"faultline/internal/prompt"
	"faultline/internal/schema"
	"faultline/internal/store"
	"faultline/internal/util/jsonutil"
)

// Stage names one pipeline state. Transitions are strictly forward.
type Stage string

const (
	StageReceiveInput       Stage = "RECEIVE_INPUT"
	StageExtractEvidence    Stage = "EXTRACT_EVIDENCE"
	StageInvokeModel        Stage = "INVOKE_MODEL"
	StageRecoverStructure   Stage = "RECOVER_STRUCTURE"
	StageNormalizeCitations Stage = "NORMALIZE_CITATIONS"
	StageApplyGuardrails    Stage = "APPLY_GUARDRAILS"
	StageEmit               Stage = "EMIT"
)

var (
	// ErrEmptyInput rejects turns with no usable text.
	ErrEmptyInput = errors.New("pipeline: raw_text is required")
	// ErrOutOfDomain rejects follow-up questions with no troubleshooting
	// signal at all.
	ErrOutOfDomain = errors.New("pipeline: question outside the troubleshooting domain")
)

// Config wires the orchestrator's collaborators. Zero-value fields get
// in-process defaults, so tests construct only what they exercise.
type Config struct {
	Extractor *evidence.Extractor
	Client    llm.Client
	Prompts   *prompt.Registry
	Store     store.Store
	Archive   artifact.Archive
	Logger    *zap.Logger
	Metrics   observability.MetricsSink
	Recover   jsonutil.RecoverOptions
}

// Orchestrator runs turns. It is safe for concurrent use.
type Orchestrator struct {
	extractor   *evidence.Extractor
	client      llm.Client
	prompts     *prompt.Registry
	store       store.Store
	archive     artifact.Archive
	logger      *zap.Logger
	metrics     observability.MetricsSink
	recoverOpts jsonutil.RecoverOptions
}

func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		extractor:   cfg.Extractor,
		client:      cfg.Client,
		prompts:     cfg.Prompts,
		store:       cfg.Store,
		archive:     cfg.Archive,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		recoverOpts: cfg.Recover,
	}
	if o.extractor == nil {
		o.extractor = evidence.NewExtractor()
	}
	if o.client == nil {
		o.client = llm.NewFakeClient()
	}
	if o.prompts == nil {
		o.prompts = prompt.NewRegistry()
	}
	if o.store == nil {
		o.store = store.NewMemory()
	}
	if o.archive == nil {
		o.archive = artifact.NewMemoryArchive()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = observability.NopSink{}
	}
	return o
}

// Triage runs a full turn over raw pasted text and returns the canonical
// response together with the incident frame it extracted.
func (o *Orchestrator) Triage(ctx context.Context, req schema.TriageRequest) (*schema.CanonicalResponse, *schema.IncidentFrame, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = requestID
	}

	o.stage(StageReceiveInput, requestID)
	rawText := strings.TrimSpace(req.RawText)
	if rawText == "" {
		return nil, nil, ErrEmptyInput
	}
	scrubbed, _ := guardrail.ScrubSensitiveText(rawText)
	inputID, err := o.store.SaveInput(ctx, conversationID, requestID, scrubbed)
	if err != nil {
		o.logger.Warn("save_input_failed", zap.String("request_id", requestID), zap.Error(err))
	}
	if err := o.archive.Put(ctx, conversationID, requestID+"/input.txt", []byte(scrubbed)); err != nil {
		o.logger.Warn("archive_input_failed", zap.String("request_id", requestID), zap.Error(err))
	}

	o.stage(StageExtractEvidence, requestID)
	frame := o.extractor.Parse(rawText, requestID, conversationID)
	if prev, ok, err := o.store.LatestFrame(ctx, conversationID); err == nil && ok {
		merged := schema.Merge(*prev, *frame)
		frame = &merged
	}
	if err := o.store.SaveFrame(ctx, frame); err != nil {
		o.logger.Warn("save_frame_failed", zap.String("request_id", requestID), zap.Error(err))
	}

	started := time.Now()
	out, result, promptMeta, err := o.invoke(ctx, "triage", prompt.TurnInput{
		ConversationID: conversationID,
		InputText:      rawText,
		Frame:          frame,
		RecentEvents:   o.recentEvents(ctx, conversationID),
	}, requestID, conversationID, started)
	if err != nil {
		return nil, frame, err
	}

	o.stage(StageNormalizeCitations, requestID)
	resolver := guardrail.NewResolver(frame.EvidenceMap)
	hypotheses := normalizeHypotheses(out.Hypotheses, resolver)

	o.stage(StageApplyGuardrails, requestID)
	hypotheses, report := guardrail.Enforce(hypotheses, frame.EvidenceMap)

	o.stage(StageEmit, requestID)
	steps := out.RunbookSteps
	if len(steps) == 0 {
		steps = defaultTriageRunbook()
	}
	resp := &schema.CanonicalResponse{
		RequestID:    requestID,
		Timestamp:    time.Now().UTC(),
		Hypotheses:   hypotheses,
		RunbookSteps: steps,
		ProposedFix:  "Review the top hypothesis and apply targeted mitigation.",
		RiskNotes:    []string{"Model output is advisory; validate before production changes."},
		Rollback:     []string{"Revert the change or disable the feature flag if symptoms worsen."},
		NextChecks: []string{
			"Verify error rate drops within 10 minutes.",
			"Confirm logs no longer show the signature.",
		},
		Metadata: map[string]any{
			"parser_version":   frame.ParserVersion,
			"parse_confidence": frame.ParseConfidence,
			"prompt_version":   promptMeta.Version(),
			"model_id":         result.ModelID,
			"provider":         result.Provider,
			"token_usage":      result.TokenUsage,
			"guardrails":       report,
			"input_id":         inputID,
		},
		ConversationID: conversationID,
	}
	if out.Category != "" {
		resp.Metadata["category"] = out.Category
	}

	o.persist(ctx, resp, store.TurnEvent{
		ConversationID: conversationID,
		RequestID:      requestID,
		Endpoint:       "triage",
		Summary:        eventSummary(frame.PrimaryErrorSignature, scrubbed),
	})
	o.observe("triage", result.ModelID, started, result.TokenUsage.TotalTokens, true, report)
	o.logger.Info("triage_response",
		zap.String("request_id", requestID),
		zap.String("conversation_id", conversationID),
		zap.String("prompt_version", promptMeta.Version()),
		zap.String("model_id", result.ModelID),
		zap.Int("tokens_total", result.TokenUsage.TotalTokens),
		zap.Int("citation_missing", report.CitationMissingCount),
		zap.Int("redactions", report.Redactions),
	)
	return resp, frame, nil
}

// Explain answers a follow-up question grounded in an existing incident
// frame. The frame comes from the request, or failing that the latest one
// stored for the conversation.
func (o *Orchestrator) Explain(ctx context.Context, req schema.ExplainRequest) (*schema.CanonicalResponse, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = requestID
	}

	o.stage(StageReceiveInput, requestID)
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyInput
	}
	if guardrail.IsNonInformative(question) {
		return o.followUpResponse(requestID, conversationID), nil
	}
	if !guardrail.IsAllowedDomain(question) {
		return nil, ErrOutOfDomain
	}

	frame := req.IncidentFrame
	if frame == nil {
		if prev, ok, err := o.store.LatestFrame(ctx, conversationID); err == nil && ok {
			frame = prev
		}
	}

	started := time.Now()
	out, result, promptMeta, err := o.invoke(ctx, "explain", prompt.TurnInput{
		ConversationID: conversationID,
		InputText:      question,
		Frame:          frame,
		RecentEvents:   o.recentEvents(ctx, conversationID),
	}, requestID, conversationID, started)
	if err != nil {
		return nil, err
	}

	o.stage(StageNormalizeCitations, requestID)
	var allowed []schema.EvidenceEntry
	if frame != nil {
		allowed = frame.EvidenceMap
	}
	resolver := guardrail.NewResolver(allowed)
	hypotheses := normalizeHypotheses(out.Hypotheses, resolver)

	o.stage(StageApplyGuardrails, requestID)
	hypotheses, report := guardrail.Enforce(hypotheses, allowed)

	o.stage(StageEmit, requestID)
	steps := out.RunbookSteps
	if len(steps) == 0 {
		steps = defaultExplainRunbook()
	}
	proposedFix := strings.TrimSpace(out.ProposedFix)
	if proposedFix == "" || guardrail.IsNonInformative(proposedFix) {
		proposedFix = "Provide additional context and re-run triage."
	}
	resp := &schema.CanonicalResponse{
		RequestID:    requestID,
		Timestamp:    time.Now().UTC(),
		Hypotheses:   hypotheses,
		RunbookSteps: steps,
		ProposedFix:  proposedFix,
		RiskNotes:    defaultStrings(out.RiskNotes, "Explanation confidence is limited without raw evidence."),
		Rollback:     defaultStrings(out.Rollback, "No action taken."),
		NextChecks:   defaultStrings(out.NextChecks, "Attach the failing request id or stack trace."),
		Metadata: map[string]any{
			"prompt_version": promptMeta.Version(),
			"model_id":       result.ModelID,
			"provider":       result.Provider,
			"token_usage":    result.TokenUsage,
			"guardrails":     report,
		},
		ConversationID: conversationID,
	}
	if frame != nil {
		resp.Metadata["parser_version"] = frame.ParserVersion
	}

	o.persist(ctx, resp, store.TurnEvent{
		ConversationID: conversationID,
		RequestID:      requestID,
		Endpoint:       "explain",
		Summary:        eventSummary(question, question),
	})
	o.observe("explain", result.ModelID, started, result.TokenUsage.TotalTokens, true, report)
	o.logger.Info("explain_response",
		zap.String("request_id", requestID),
		zap.String("conversation_id", conversationID),
		zap.String("prompt_version", promptMeta.Version()),
		zap.String("model_id", result.ModelID),
		zap.Int("tokens_total", result.TokenUsage.TotalTokens),
		zap.Int("citation_missing", report.CitationMissingCount),
		zap.Int("redactions", report.Redactions),
	)
	return resp, nil
}

// invoke renders the endpoint prompt, calls the model and recovers its
// payload. Transport and recovery failures are both recorded as a failed
// turn before being returned.
func (o *Orchestrator) invoke(ctx context.Context, endpoint string, in prompt.TurnInput, requestID, conversationID string, started time.Time) (*modelOutput, llm.Result, prompt.Prompt, error) {
	promptMeta, err := o.prompts.Get(endpoint)
	if err != nil {
		return nil, llm.Result{}, prompt.Prompt{}, err
	}
	full := prompt.Render(promptMeta, in)

	o.stage(StageInvokeModel, requestID)
	result, err := o.client.Generate(ctx, full)
	if err != nil {
		o.observe(endpoint, o.client.Name(), started, 0, false, schema.GuardrailReport{})
		o.logError(endpoint, requestID, conversationID, err, "")
		return nil, llm.Result{}, promptMeta, fmt.Errorf("pipeline: invoke model: %w", err)
	}

	o.stage(StageRecoverStructure, requestID)
	out, err := decodeModelOutput(result.Text, o.recoverOpts)
	if err != nil {
		o.observe(endpoint, result.ModelID, started, result.TokenUsage.TotalTokens, false, schema.GuardrailReport{})
		o.logError(endpoint, requestID, conversationID, err, result.Text)
		return nil, result, promptMeta, err
	}
	return out, result, promptMeta, nil
}

// normalizeHypotheses resolves each hypothesis's citation references and
// fills the identifiers a model commonly leaves out.
func normalizeHypotheses(in []modelHypothesis, resolver *guardrail.Resolver) []schema.Hypothesis {
	out := make([]schema.Hypothesis, 0, len(in))
	for i, mh := range in {
		h := schema.Hypothesis{
			ID:          mh.ID,
			Rank:        mh.Rank,
			Confidence:  mh.Confidence,
			Explanation: mh.Explanation,
			Citations:   resolver.ResolveAll(mh.Citations),
		}
		if h.ID == "" {
			h.ID = fmt.Sprintf("hyp-%d", i+1)
		}
		if h.Rank == 0 {
			h.Rank = i + 1
		}
		out = append(out, h)
	}
	return out
}

func (o *Orchestrator) persist(ctx context.Context, resp *schema.CanonicalResponse, event store.TurnEvent) {
	if err := o.store.SaveResponse(ctx, resp); err != nil {
		o.logger.Warn("save_response_failed", zap.String("request_id", resp.RequestID), zap.Error(err))
	}
	if err := o.store.SaveEvent(ctx, event); err != nil {
		o.logger.Warn("save_event_failed", zap.String("request_id", resp.RequestID), zap.Error(err))
	}
}

func (o *Orchestrator) recentEvents(ctx context.Context, conversationID string) []string {
	events, err := o.store.RecentEvents(ctx, conversationID, 5)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Endpoint+": "+e.Summary)
	}
	return out
}

func (o *Orchestrator) observe(endpoint, modelID string, started time.Time, tokens int, success bool, report schema.GuardrailReport) {
	o.metrics.ObserveTurn(observability.TurnMetrics{
		Endpoint:            endpoint,
		ModelID:             modelID,
		LatencyMS:           float64(time.Since(started).Milliseconds()),
		TokensTotal:         tokens,
		Success:             success,
		GuardrailMissing:    report.CitationMissingCount,
		GuardrailRedactions: report.Redactions,
	})
}

func (o *Orchestrator) logError(endpoint, requestID, conversationID string, err error, rawOutput string) {
	o.logger.Error(endpoint+"_error",
		zap.String("request_id", requestID),
		zap.String("conversation_id", conversationID),
		zap.Error(err),
		zap.String("llm_output_preview", outputPreview(rawOutput)),
	)
}

// outputPreview scrubs and truncates raw model text before it reaches logs.
func outputPreview(text string) string {
	scrubbed, _ := guardrail.ScrubSensitiveText(text)
	if len(scrubbed) > 400 {
		scrubbed = scrubbed[:400] + "..."
	}
	return scrubbed
}

// eventSummary prefers the primary signature and falls back to the first
// line of the (already scrubbed) input.
func eventSummary(primary, fallback string) string {
	s := strings.TrimSpace(primary)
	if s == "" {
		s, _, _ = strings.Cut(strings.TrimSpace(fallback), "\n")
	}
	if len(s) > 160 {
		s = s[:160]
	}
	return s
}

func defaultStrings(in []string, fallback string) []string {
	if len(in) > 0 {
		return in
	}
	return []string{fallback}
}

func defaultTriageRunbook() []schema.RunbookStep {
	return []schema.RunbookStep{
		{
			StepNumber:           1,
			Description:          "Confirm the error signature in the raw logs.",
			CommandOrConsolePath: "CloudWatch Logs or log viewer",
			EstimatedTimeMins:    5,
		},
		{
			StepNumber:           2,
			Description:          "Identify recent deploys or config changes.",
			CommandOrConsolePath: "CI/CD dashboard",
			EstimatedTimeMins:    10,
		},
	}
}

// followUpResponse answers a non-informative operator message without a
// model call: there is nothing to analyze, so ask for the missing detail.
func (o *Orchestrator) followUpResponse(requestID, conversationID string) *schema.CanonicalResponse {
	return &schema.CanonicalResponse{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Hypotheses: []schema.Hypothesis{{
			ID:          "hyp-followup",
			Rank:        1,
			Confidence:  0.1,
			Explanation: guardrail.RephraseMissingDetails(nil),
		}},
		RunbookSteps: defaultExplainRunbook(),
		ProposedFix:  "Provide additional context and re-run triage.",
		RiskNotes:    []string{"Explanation confidence is limited without raw evidence."},
		Rollback:     []string{"No action taken."},
		NextChecks:   []string{"Attach the failing request id or stack trace."},
		Metadata: map[string]any{
			"follow_up": true,
		},
		ConversationID: conversationID,
	}
}

func defaultExplainRunbook() []schema.RunbookStep {
	return []schema.RunbookStep{
		{
			StepNumber:           1,
			Description:          "Collect additional logs or traces that capture the failure.",
			CommandOrConsolePath: "Log viewer or APM",
			EstimatedTimeMins:    10,
		},
	}
}

func (o *Orchestrator) stage(s Stage, requestID string) {
	o.logger.Debug("pipeline_stage", zap.String("stage", string(s)), zap.String("request_id", requestID))
}
