package guardrail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faultline/internal/schema"
)

func entry(id string, line int, hash string) schema.EvidenceEntry {
	return schema.EvidenceEntry{
		SourceType:  "log",
		SourceID:    id,
		LineStart:   line,
		LineEnd:     line,
		ExcerptHash: hash,
	}
}

func TestEnforceCapsMissingCitations(t *testing.T) {
	h := schema.Hypothesis{ID: "h1", Rank: 1, Confidence: 0.8, Explanation: "Something failed."}
	out, report := Enforce([]schema.Hypothesis{h}, nil)

	require.Len(t, out, 1)
	assert.Equal(t, 1, report.CitationMissingCount)
	assert.True(t, strings.HasPrefix(out[0].Explanation, "No citation found."))
	assert.LessOrEqual(t, out[0].Confidence, 0.3)
}

func TestEnforceFiltersFabricatedCitations(t *testing.T) {
	allowed := entry("raw-input", 1, "abc")
	fabricated := entry("raw-input", 99, "zzz")

	real := schema.Hypothesis{ID: "h1", Rank: 1, Confidence: 0.9, Explanation: "Cited.", Citations: []schema.EvidenceEntry{allowed}}
	fake := schema.Hypothesis{ID: "h2", Rank: 2, Confidence: 0.9, Explanation: "Invented.", Citations: []schema.EvidenceEntry{fabricated}}

	out, report := Enforce([]schema.Hypothesis{real, fake}, []schema.EvidenceEntry{allowed})

	require.Len(t, out, 2)
	assert.Equal(t, 0.9, out[0].Confidence)
	assert.Equal(t, "Cited.", out[0].Explanation)
	assert.Len(t, out[0].Citations, 1)

	assert.Empty(t, out[1].Citations)
	assert.LessOrEqual(t, out[1].Confidence, 0.3)
	assert.Equal(t, 1, report.CitationMissingCount)
}

func TestEnforceRedactsIdentifiers(t *testing.T) {
	h := schema.Hypothesis{
		ID:          "h1",
		Rank:        1,
		Confidence:  0.7,
		Explanation: "Failure in arn:aws:iam::123456789012:role/Admin.",
	}
	out, report := Enforce([]schema.Hypothesis{h}, nil)

	require.Len(t, out, 1)
	assert.GreaterOrEqual(t, report.Redactions, 1)
	assert.Contains(t, out[0].Explanation, "[REDACTED_IDENTIFIER]")
	assert.LessOrEqual(t, out[0].Confidence, 0.2)
	assert.Contains(t, report.Issues, "redacted_identifiers")
}

func TestEnforceBothChecksTakeStricterCap(t *testing.T) {
	allowed := entry("raw-input", 1, "abc")
	h := schema.Hypothesis{
		ID:          "h1",
		Rank:        1,
		Confidence:  0.95,
		Explanation: "Account 123456789012 misconfigured.",
		Citations:   []schema.EvidenceEntry{allowed},
	}
	out, report := Enforce([]schema.Hypothesis{h}, []schema.EvidenceEntry{allowed})

	// Valid citation, but the redaction cap still applies.
	require.Len(t, out, 1)
	assert.Len(t, out[0].Citations, 1)
	assert.LessOrEqual(t, out[0].Confidence, 0.2)
	assert.Equal(t, 0, report.CitationMissingCount)
	assert.Equal(t, 1, report.Redactions)
}

func TestEnforceKeepsLowConfidenceAsIs(t *testing.T) {
	h := schema.Hypothesis{ID: "h1", Rank: 1, Confidence: 0.1, Explanation: "Weak claim."}
	out, _ := Enforce([]schema.Hypothesis{h}, nil)
	// A cap lowers, never raises.
	assert.Equal(t, 0.1, out[0].Confidence)
}

func TestSubsetProperty(t *testing.T) {
	evidence := []schema.EvidenceEntry{
		entry("raw-input", 1, "aaa"),
		entry("raw-input", 2, "bbb"),
	}
	hyps := []schema.Hypothesis{
		{ID: "h1", Confidence: 0.8, Citations: []schema.EvidenceEntry{evidence[0], entry("raw-input", 5, "xxx")}},
		{ID: "h2", Confidence: 0.8, Citations: []schema.EvidenceEntry{entry("other", 1, "aaa")}},
	}
	out, _ := Enforce(hyps, evidence)

	valid := map[string]bool{}
	for _, e := range evidence {
		valid[e.Signature()] = true
	}
	for _, h := range out {
		for _, c := range h.Citations {
			if !valid[c.Signature()] {
				t.Fatalf("citation %s escaped the evidence set", c.Signature())
			}
		}
	}
}
