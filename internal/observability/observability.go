// Package observability provides the structured logger and the metrics hook
// the pipeline reports into. Storage of metrics is an external concern; the
// core only exposes the counts.
package observability

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Local environments get the
// development config; everything else logs structured JSON.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// TurnMetrics is one pipeline turn's worth of counters.
type TurnMetrics struct {
	Endpoint            string
	ModelID             string
	LatencyMS           float64
	TokensTotal         int
	Success             bool
	GuardrailMissing    int
	GuardrailRedactions int
}

// MetricsSink receives turn counters. Implementations decide where they go.
type MetricsSink interface {
	ObserveTurn(m TurnMetrics)
}

// NopSink drops everything.
type NopSink struct{}

func (NopSink) ObserveTurn(TurnMetrics) {}

// LogSink emits each turn as one structured event, which is enough for
// log-based dashboards.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) ObserveTurn(m TurnMetrics) {
	s.Logger.Info("turn_metrics",
		zap.String("endpoint", m.Endpoint),
		zap.String("model_id", m.ModelID),
		zap.Float64("latency_ms", m.LatencyMS),
		zap.Int("tokens_total", m.TokensTotal),
		zap.Bool("success", m.Success),
		zap.Int("guardrail_citation_missing", m.GuardrailMissing),
		zap.Int("guardrail_redactions", m.GuardrailRedactions),
	)
}
