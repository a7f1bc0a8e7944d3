package guardrail

import (
	"regexp"

	"faultline/internal/schema"
)

// Confidence caps applied by enforcement. A sensitive-data leak is worse
// than an unsupported claim, so the redaction cap is tighter.
const (
	noCitationCap = 0.3
	redactionCap  = 0.2
)

// noCitationPrefix flags an explanation whose supporting evidence vanished.
const noCitationPrefix = "No citation found. "

const redactionMarker = "[REDACTED_IDENTIFIER]"

var (
	arnPattern       = regexp.MustCompile(`(?i)arn:aws[a-z-]*:[^\s]+`)
	accountIDPattern = regexp.MustCompile(`\b\d{12}\b`)
)

// Enforce filters every hypothesis down to citations present in the allowed
// evidence set and demotes what cannot be supported. Zero surviving
// citations caps confidence at 0.3 and flags the explanation; a sensitive
// identifier in the explanation is replaced and caps confidence at 0.2.
// Both checks are independent; when both fire the stricter cap wins.
func Enforce(hypotheses []schema.Hypothesis, allowed []schema.EvidenceEntry) ([]schema.Hypothesis, schema.GuardrailReport) {
	valid := make(map[string]struct{}, len(allowed))
	for _, e := range allowed {
		valid[e.Signature()] = struct{}{}
	}

	var report schema.GuardrailReport
	out := make([]schema.Hypothesis, 0, len(hypotheses))
	for _, h := range hypotheses {
		var kept []schema.EvidenceEntry
		for _, c := range h.Citations {
			if _, ok := valid[c.Signature()]; ok {
				kept = append(kept, c)
			}
		}
		h.Citations = kept
		if len(kept) == 0 {
			h.Confidence = capConfidence(h.Confidence, noCitationCap)
			h.Explanation = noCitationPrefix + h.Explanation
			report.CitationMissingCount++
		}

		redacted, hits := redactIdentifiers(h.Explanation)
		if hits > 0 {
			h.Explanation = redacted
			h.Confidence = capConfidence(h.Confidence, redactionCap)
			report.Redactions += hits
			report.Issues = append(report.Issues, "redacted_identifiers")
		}
		out = append(out, h)
	}
	return out, report
}

// redactIdentifiers strips cloud resource ARNs and bare 12-digit account
// numbers from explanation text.
func redactIdentifiers(text string) (string, int) {
	hits := 0
	for _, re := range []*regexp.Regexp{arnPattern, accountIDPattern} {
		matches := re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		hits += len(matches)
		text = re.ReplaceAllString(text, redactionMarker)
	}
	return text, hits
}

// capConfidence takes the minimum so the result never depends on the order
// the checks run in.
func capConfidence(current, limit float64) float64 {
	if current < limit {
		return current
	}
	return limit
}
