package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"faultline/internal/budget"
	"faultline/internal/cache"
	"faultline/internal/llm"
	"faultline/internal/pipeline"
	"faultline/internal/schema"
)

// Handlers binds the HTTP surface to the pipeline and its gatekeepers.
type Handlers struct {
	orch   *pipeline.Orchestrator
	cache  *cache.ResponseCache
	budget *budget.Enforcer
	hub    *Hub
	logger *zap.Logger
	deps   []string
}

func NewHandlers(orch *pipeline.Orchestrator, respCache *cache.ResponseCache, enforcer *budget.Enforcer, hub *Hub, logger *zap.Logger, deps []string) *Handlers {
	return &Handlers{
		orch:   orch,
		cache:  respCache,
		budget: enforcer,
		hub:    hub,
		logger: logger,
		deps:   deps,
	}
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, schema.StatusResponse{
		Status:       "ok",
		Dependencies: h.deps,
		Timestamp:    time.Now().UTC(),
	})
}

func (h *Handlers) HandleTriage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req schema.TriageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestIDFrom(r)
	}
	if req.ConversationID == "" {
		req.ConversationID = req.RequestID
	}
	if strings.TrimSpace(req.RawText) == "" {
		http.Error(w, "raw_text is required", http.StatusBadRequest)
		return
	}
	if !h.allow(w, r, req.ConversationID, req.RawText) {
		return
	}

	resp, _, err := h.orch.Triage(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.notify("triage", resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleExplain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req schema.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestIDFrom(r)
	}
	if req.ConversationID == "" {
		req.ConversationID = req.RequestID
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	if !h.allow(w, r, req.ConversationID, req.Question) {
		return
	}

	// Follow-up answers are cacheable: the stored frame only changes on a
	// triage turn, and triage invalidates nothing the model saw here that a
	// repeat question would miss in practice.
	key := cache.Key("explain", req.ConversationID, req.Question)
	resp, cached, err := h.cache.Do(key, func() (*schema.CanonicalResponse, error) {
		return h.orch.Explain(r.Context(), req)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !cached {
		h.notify("explain", resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// allow runs the token budget gate. A denied turn gets 429 with Retry-After.
func (h *Handlers) allow(w http.ResponseWriter, r *http.Request, conversationID, text string) bool {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		userID = conversationID
	}
	decision := h.budget.Enforce(userID, llm.EstimateTokens(text))
	if decision.Allowed {
		return true
	}
	retryIn := int(time.Until(decision.RetryAfter).Seconds())
	if retryIn < 1 {
		retryIn = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryIn))
	http.Error(w, "token budget exhausted", http.StatusTooManyRequests)
	return false
}

func (h *Handlers) notify(endpoint string, resp *schema.CanonicalResponse) {
	summary := ""
	if len(resp.Hypotheses) > 0 {
		summary = resp.Hypotheses[0].Explanation
	}
	h.hub.Publish(TurnNotice{
		ConversationID: resp.ConversationID,
		RequestID:      resp.RequestID,
		Endpoint:       endpoint,
		Summary:        summary,
		Timestamp:      resp.Timestamp,
	})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pipeline.ErrOutOfDomain):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, pipeline.ErrBadModelOutput), errors.Is(err, llm.ErrTransport):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("turn failed", zap.String("request_id", requestIDFrom(r)), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
