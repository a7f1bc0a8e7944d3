package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"faultline/internal/evidence"
	"faultline/internal/llm"
	"faultline/internal/observability"
	"faultline/internal/schema"
	"faultline/internal/store"
)

const sampleLog = `2024-05-01T10:00:00Z api ERROR upstream timeout after 30s
2024-05-01T10:00:01Z api ERROR request failed with status 504`

// evidenceHash extracts the content hash the model would legitimately cite.
func evidenceHash(t *testing.T, rawText string) string {
	t.Helper()
	frame := evidence.NewExtractor().Parse(rawText, "probe", "probe")
	if len(frame.EvidenceMap) == 0 {
		t.Fatalf("sample input produced no evidence")
	}
	return frame.EvidenceMap[0].ExcerptHash
}

type recordingSink struct {
	mu    sync.Mutex
	turns []observability.TurnMetrics
}

func (s *recordingSink) ObserveTurn(m observability.TurnMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, m)
}

func TestTriageKeepsSupportedCitations(t *testing.T) {
	hash := evidenceHash(t, sampleLog)
	script := fmt.Sprintf(`{"hypotheses":[{"id":"h1","rank":1,"confidence":0.9,"explanation":"Upstream dependency is timing out.","citations":["%s"]}]}`, hash)

	sink := &recordingSink{}
	o := New(Config{Client: llm.NewFakeClient(script), Metrics: sink})
	resp, frame, err := o.Triage(context.Background(), schema.TriageRequest{RawText: sampleLog})
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if len(resp.Hypotheses) != 1 {
		t.Fatalf("expected one hypothesis, got %d", len(resp.Hypotheses))
	}
	h := resp.Hypotheses[0]
	if len(h.Citations) == 0 {
		t.Fatalf("supported citation must survive enforcement")
	}
	if h.Confidence != 0.9 {
		t.Fatalf("supported hypothesis must keep its confidence, got %v", h.Confidence)
	}
	allowed := make(map[string]struct{})
	for _, e := range frame.EvidenceMap {
		allowed[e.Signature()] = struct{}{}
	}
	for _, c := range h.Citations {
		if _, ok := allowed[c.Signature()]; !ok {
			t.Fatalf("citation %q not in the frame's evidence map", c.Signature())
		}
	}
	if len(resp.RunbookSteps) == 0 {
		t.Fatalf("default runbook must fill in when the model omits steps")
	}
	if resp.Metadata["parser_version"] != frame.ParserVersion {
		t.Fatalf("metadata must carry the parser version")
	}
	if len(sink.turns) != 1 || !sink.turns[0].Success {
		t.Fatalf("expected one successful turn metric, got %+v", sink.turns)
	}
}

func TestTriageDemotesFabricatedCitations(t *testing.T) {
	script := `{"hypotheses":[{"id":"h1","confidence":0.95,"explanation":"Disk is full.","citations":["deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"]}]}`
	o := New(Config{Client: llm.NewFakeClient(script)})
	resp, _, err := o.Triage(context.Background(), schema.TriageRequest{RawText: sampleLog})
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	h := resp.Hypotheses[0]
	if len(h.Citations) != 0 {
		t.Fatalf("fabricated citation must be dropped, got %v", h.Citations)
	}
	if h.Confidence > 0.3 {
		t.Fatalf("uncited hypothesis must be capped at 0.3, got %v", h.Confidence)
	}
	if !strings.HasPrefix(h.Explanation, "No citation found. ") {
		t.Fatalf("uncited explanation must be flagged, got %q", h.Explanation)
	}
}

func TestTriageRedactsLeakedIdentifiers(t *testing.T) {
	hash := evidenceHash(t, sampleLog)
	script := fmt.Sprintf(`{"hypotheses":[{"confidence":0.9,"explanation":"Role arn:aws:iam::123456789012:role/deploy lacks permissions.","citations":["%s"]}]}`, hash)
	o := New(Config{Client: llm.NewFakeClient(script)})
	resp, _, err := o.Triage(context.Background(), schema.TriageRequest{RawText: sampleLog})
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	h := resp.Hypotheses[0]
	if !strings.Contains(h.Explanation, "[REDACTED_IDENTIFIER]") {
		t.Fatalf("identifier must be redacted, got %q", h.Explanation)
	}
	if h.Confidence > 0.2 {
		t.Fatalf("redacted hypothesis must be capped at 0.2, got %v", h.Confidence)
	}
}

func TestTriageRecoversTruncatedOutput(t *testing.T) {
	script := `Sure, here is my analysis: {"hypotheses": [{"explanation": "Upstream timeout", "confidence": 0.6`
	o := New(Config{Client: llm.NewFakeClient(script)})
	resp, _, err := o.Triage(context.Background(), schema.TriageRequest{RawText: sampleLog})
	if err != nil {
		t.Fatalf("recoverable output must not fail the turn: %v", err)
	}
	if len(resp.Hypotheses) != 1 {
		t.Fatalf("expected recovered hypothesis, got %d", len(resp.Hypotheses))
	}
	if resp.Hypotheses[0].ID != "hyp-1" || resp.Hypotheses[0].Rank != 1 {
		t.Fatalf("missing id and rank must be filled in, got %+v", resp.Hypotheses[0])
	}
}

func TestTriageRejectsEmptyInput(t *testing.T) {
	o := New(Config{})
	if _, _, err := o.Triage(context.Background(), schema.TriageRequest{RawText: "   \n"}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestTriageFailsOnIrreparableOutput(t *testing.T) {
	sink := &recordingSink{}
	o := New(Config{Client: llm.NewFakeClient("the model refused to answer in json"), Metrics: sink})
	_, _, err := o.Triage(context.Background(), schema.TriageRequest{RawText: sampleLog})
	if !errors.Is(err, ErrBadModelOutput) {
		t.Fatalf("expected ErrBadModelOutput, got %v", err)
	}
	if len(sink.turns) != 1 || sink.turns[0].Success {
		t.Fatalf("failed turn must be observed as a failure, got %+v", sink.turns)
	}
}

func TestTriageFailsOnSchemaViolation(t *testing.T) {
	o := New(Config{Client: llm.NewFakeClient(`{"hypotheses": "not a list"}`)})
	if _, _, err := o.Triage(context.Background(), schema.TriageRequest{RawText: sampleLog}); !errors.Is(err, ErrBadModelOutput) {
		t.Fatalf("schema violation must fail like irreparable output, got %v", err)
	}
}

func TestTriageSurfacesTransportErrors(t *testing.T) {
	boom := fmt.Errorf("%w: connection reset", llm.ErrTransport)
	o := New(Config{Client: llm.NewFailingFakeClient(boom)})
	_, _, err := o.Triage(context.Background(), schema.TriageRequest{RawText: sampleLog})
	if !errors.Is(err, llm.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestExplainUsesStoredFrame(t *testing.T) {
	hash := evidenceHash(t, sampleLog)
	explainScript := fmt.Sprintf(`{"hypotheses":[{"confidence":0.8,"explanation":"The gateway timed out waiting for the api.","citations":["%s"]}],"proposed_fix":"Raise the upstream timeout to 60s."}`, hash)

	mem := store.NewMemory()
	o := New(Config{
		Client: llm.NewFakeClient(`{"hypotheses": []}`, explainScript),
		Store:  mem,
	})
	if _, _, err := o.Triage(context.Background(), schema.TriageRequest{ConversationID: "conv-1", RawText: sampleLog}); err != nil {
		t.Fatalf("triage: %v", err)
	}

	resp, err := o.Explain(context.Background(), schema.ExplainRequest{
		ConversationID: "conv-1",
		Question:       "why did the api time out?",
	})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	h := resp.Hypotheses[0]
	if len(h.Citations) == 0 {
		t.Fatalf("citation must resolve against the stored frame")
	}
	if h.Confidence != 0.8 {
		t.Fatalf("supported hypothesis must keep its confidence, got %v", h.Confidence)
	}
	if resp.ProposedFix != "Raise the upstream timeout to 60s." {
		t.Fatalf("model-provided fix must survive, got %q", resp.ProposedFix)
	}
}

func TestExplainRejectsOffTopicQuestions(t *testing.T) {
	o := New(Config{})
	_, err := o.Explain(context.Background(), schema.ExplainRequest{Question: "what is the capital of France?"})
	if !errors.Is(err, ErrOutOfDomain) {
		t.Fatalf("expected ErrOutOfDomain, got %v", err)
	}
}

func TestExplainFillsDefaultsWithoutFrame(t *testing.T) {
	o := New(Config{Client: llm.NewFakeClient(`{"hypotheses":[{"confidence":0.9,"explanation":"It was the deploy."}],"proposed_fix":"not sure"}`)})
	resp, err := o.Explain(context.Background(), schema.ExplainRequest{Question: "did the last deploy break the build?"})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if resp.ProposedFix != "Provide additional context and re-run triage." {
		t.Fatalf("non-informative fix must fall back to the default, got %q", resp.ProposedFix)
	}
	if len(resp.RunbookSteps) == 0 || len(resp.NextChecks) == 0 {
		t.Fatalf("defaults must fill empty remediation fields")
	}
	h := resp.Hypotheses[0]
	if h.Confidence > 0.3 {
		t.Fatalf("hypothesis without evidence must be capped, got %v", h.Confidence)
	}
}

func TestExplainAsksForMissingDetails(t *testing.T) {
	client := llm.NewFakeClient()
	o := New(Config{Client: client})
	resp, err := o.Explain(context.Background(), schema.ExplainRequest{
		ConversationID: "conv-1",
		Question:       "idk",
	})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if len(client.Prompts) != 0 {
		t.Fatalf("a non-informative question must not reach the model, got %d prompts", len(client.Prompts))
	}
	if len(resp.Hypotheses) != 1 || resp.Hypotheses[0].ID != "hyp-followup" {
		t.Fatalf("expected a follow-up hypothesis, got %+v", resp.Hypotheses)
	}
	if resp.Metadata["follow_up"] != true {
		t.Fatalf("follow-up turns must be marked in metadata, got %v", resp.Metadata)
	}
	if resp.ConversationID != "conv-1" {
		t.Fatalf("conversation id must round-trip, got %q", resp.ConversationID)
	}
}

func TestTriageMergesConversationFrames(t *testing.T) {
	mem := store.NewMemory()
	o := New(Config{Client: llm.NewFakeClient(`{"hypotheses": []}`, `{"hypotheses": []}`), Store: mem})

	first := "2024-05-01T10:00:00Z api ERROR timeout calling lambda"
	second := "2024-05-01T10:05:00Z worker ERROR timeout calling dynamodb"
	if _, _, err := o.Triage(context.Background(), schema.TriageRequest{ConversationID: "conv-1", RawText: first}); err != nil {
		t.Fatalf("first triage: %v", err)
	}
	_, frame, err := o.Triage(context.Background(), schema.TriageRequest{ConversationID: "conv-1", RawText: second})
	if err != nil {
		t.Fatalf("second triage: %v", err)
	}
	infra := strings.Join(frame.InfraComponents, ",")
	if !strings.Contains(infra, "lambda") || !strings.Contains(infra, "dynamodb") {
		t.Fatalf("merged frame must union infra components, got %q", infra)
	}
}
