package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"faultline/internal/budget"
	"faultline/internal/cache"
	"faultline/internal/llm"
	"faultline/internal/pipeline"
	"faultline/internal/schema"
)

func newTestMux(t *testing.T, client llm.Client, tokenLimit int) http.Handler {
	t.Helper()
	respCache, err := cache.New(16)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	orch := pipeline.New(pipeline.Config{Client: client})
	h := NewHandlers(orch, respCache, budget.NewEnforcer(tokenLimit, time.Minute), NewHub(), zap.NewNop(), []string{"parser", "storage"})
	return NewMux(h)
}

func postJSON(t *testing.T, mux http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	mux := newTestMux(t, llm.NewFakeClient(), 0)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp schema.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || len(resp.Dependencies) == 0 {
		t.Fatalf("unexpected status payload %+v", resp)
	}
}

func TestTriageEndpointReturnsResponse(t *testing.T) {
	mux := newTestMux(t, llm.NewFakeClient(), 0)
	rec := postJSON(t, mux, "/triage", schema.TriageRequest{RawText: "ERROR timeout calling upstream api"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("response must echo a request id")
	}
	var resp schema.CanonicalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RequestID == "" || len(resp.RunbookSteps) == 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestTriageEndpointRejectsEmptyRawText(t *testing.T) {
	mux := newTestMux(t, llm.NewFakeClient(), 0)
	rec := postJSON(t, mux, "/triage", schema.TriageRequest{RawText: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTriageEndpointMapsBadModelOutputTo502(t *testing.T) {
	mux := newTestMux(t, llm.NewFakeClient("not json at all"), 0)
	rec := postJSON(t, mux, "/triage", schema.TriageRequest{RawText: "ERROR something broke"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestTriageEndpointMapsTransportErrorTo502(t *testing.T) {
	boom := fmt.Errorf("%w: dial tcp: refused", llm.ErrTransport)
	mux := newTestMux(t, llm.NewFailingFakeClient(boom), 0)
	rec := postJSON(t, mux, "/triage", schema.TriageRequest{RawText: "ERROR something broke"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestExplainEndpointMapsOutOfDomainTo422(t *testing.T) {
	mux := newTestMux(t, llm.NewFakeClient(), 0)
	rec := postJSON(t, mux, "/explain", schema.ExplainRequest{Question: "what's a good pasta recipe?"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestExplainEndpointCachesRepeatQuestions(t *testing.T) {
	client := llm.NewFakeClient(
		`{"hypotheses":[{"confidence":0.5,"explanation":"First answer."}]}`,
		`{"hypotheses":[{"confidence":0.5,"explanation":"Second answer."}]}`,
	)
	mux := newTestMux(t, client, 0)

	req := schema.ExplainRequest{ConversationID: "conv-1", Question: "why did the build fail?"}
	first := postJSON(t, mux, "/explain", req)
	second := postJSON(t, mux, "/explain", req)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("status = %d / %d", first.Code, second.Code)
	}

	var a, b schema.CanonicalResponse
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if a.Hypotheses[0].Explanation != b.Hypotheses[0].Explanation {
		t.Fatalf("repeat question must hit the cache: %q vs %q", a.Hypotheses[0].Explanation, b.Hypotheses[0].Explanation)
	}
	if got := len(client.Prompts); got != 1 {
		t.Fatalf("model invoked %d times, want 1", got)
	}
}

func TestBudgetGateReturns429(t *testing.T) {
	mux := newTestMux(t, llm.NewFakeClient(), 10)
	body := schema.TriageRequest{ConversationID: "conv-1", RawText: "ERROR " + strings.Repeat("x", 200)}

	first := postJSON(t, mux, "/triage", body)
	if first.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", first.Code)
	}
	if first.Header().Get("Retry-After") == "" {
		t.Fatalf("429 must carry Retry-After")
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	mux := newTestMux(t, llm.NewFakeClient(), 0)
	req := httptest.NewRequest(http.MethodGet, "/triage", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
