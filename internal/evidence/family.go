package evidence

import (
	"strings"

	"faultline/internal/schema"
)

// Result carries the family-specific fields one parser extracted.
type Result struct {
	PrimaryErrorSignature string
	SecondarySignatures   []string
	EvidenceMap           []schema.EvidenceEntry
	InfraComponents       []string
}

// FamilyParser recognizes one category of log/trace input. MatchScore and
// Extract must be pure functions of the normalized input so concurrent turns
// can share one registry without locking.
type FamilyParser interface {
	Family() string
	MatchScore(n *Normalized) int
	Extract(n *Normalized) *Result
}

// DefaultParsers returns the family registry in its fixed registration
// order. The order is a contract: score ties keep the earlier parser.
func DefaultParsers() []FamilyParser {
	return []FamilyParser{
		&TerraformParser{},
		&CloudWatchParser{},
		&TracebackParser{},
		&GenericParser{},
	}
}

// selectParser runs every parser's MatchScore and keeps the highest score,
// first registered wins ties.
func selectParser(parsers []FamilyParser, n *Normalized) (FamilyParser, int) {
	var best FamilyParser
	bestScore := -1
	for _, p := range parsers {
		if score := p.MatchScore(n); score > bestScore {
			best = p
			bestScore = score
		}
	}
	if best == nil {
		return &GenericParser{}, 0
	}
	return best, bestScore
}

// makeEvidence records one signature line as an addressable entry. The hash
// covers the exact original-case line text so re-identification by hash is
// stable across turns.
func makeEvidence(sourceID string, lineStart, lineEnd int, text string) schema.EvidenceEntry {
	return schema.EvidenceEntry{
		SourceType:  "log",
		SourceID:    sourceID,
		LineStart:   lineStart,
		LineEnd:     lineEnd,
		ExcerptHash: schema.HashExcerpt(text),
		Excerpt:     text,
	}
}

func truncateSignature(text string) string {
	const maxLen = 256
	s := strings.TrimSpace(text)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
