// Package guardrail constrains model-proposed hypotheses to evidence that
// actually exists, and strips sensitive identifiers from their text.
package guardrail

import (
	"encoding/json"
	"fmt"
	"strings"

	"faultline/internal/schema"
)

// Ref is one model-supplied citation reference. Models cite evidence by
// unstable means: a full entry, a bare hash, a raw excerpt string, a line
// range tuple, or a numeric index into the evidence list. Ref is the single
// closed shape all of those decode into, so the filter has one input shape.
type Ref struct {
	Entry   *schema.EvidenceEntry
	Literal string // bare string form: hash or raw excerpt
	Index   *int
}

// UnmarshalJSON accepts the object, string and number forms a model emits.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	switch trimmed[0] {
	case '{':
		var entry schema.EvidenceEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("guardrail: citation object: %w", err)
		}
		r.Entry = &entry
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("guardrail: citation string: %w", err)
		}
		r.Literal = s
		return nil
	default:
		var idx int
		if err := json.Unmarshal(data, &idx); err != nil {
			return fmt.Errorf("guardrail: citation index: %w", err)
		}
		r.Index = &idx
		return nil
	}
}

// Resolver resolves citation references against the evidence legitimately
// available for one turn.
type Resolver struct {
	evidence    []schema.EvidenceEntry
	bySignature map[string]schema.EvidenceEntry
	byHash      map[string]schema.EvidenceEntry
	byExcerpt   map[string]schema.EvidenceEntry
	byTuple     map[string]schema.EvidenceEntry
}

// NewResolver indexes the evidence set for the resolution chain.
func NewResolver(evidence []schema.EvidenceEntry) *Resolver {
	r := &Resolver{
		evidence:    evidence,
		bySignature: make(map[string]schema.EvidenceEntry, len(evidence)),
		byHash:      make(map[string]schema.EvidenceEntry, len(evidence)),
		byExcerpt:   make(map[string]schema.EvidenceEntry, len(evidence)),
		byTuple:     make(map[string]schema.EvidenceEntry, len(evidence)),
	}
	for _, e := range evidence {
		r.index(e.Signature(), r.bySignature, e)
		if e.ExcerptHash != "" {
			r.index(e.ExcerptHash, r.byHash, e)
		}
		if e.Excerpt != "" {
			r.index(strings.TrimSpace(e.Excerpt), r.byExcerpt, e)
		}
		r.index(tupleKey(e.SourceType, e.SourceID, e.LineStart, e.LineEnd), r.byTuple, e)
	}
	return r
}

// index keeps the first entry for a key; later duplicates never shadow it.
func (r *Resolver) index(key string, m map[string]schema.EvidenceEntry, e schema.EvidenceEntry) {
	if _, ok := m[key]; !ok {
		m[key] = e
	}
}

// Resolve maps one reference to a legitimate evidence entry. The chain runs
// exact signature, hash, trimmed excerpt text, line-range tuple, and only as
// a last resort a literal index into the evidence list. A reference that
// resolves by none of these is dropped, never guessed.
func (r *Resolver) Resolve(ref Ref) (schema.EvidenceEntry, bool) {
	if ref.Entry != nil {
		e := *ref.Entry
		if hit, ok := r.bySignature[e.Signature()]; ok {
			return hit, true
		}
		if e.ExcerptHash != "" {
			if hit, ok := r.byHash[e.ExcerptHash]; ok {
				return hit, true
			}
		}
		if e.Excerpt != "" {
			if hit, ok := r.byExcerpt[strings.TrimSpace(e.Excerpt)]; ok {
				return hit, true
			}
		}
		if hit, ok := r.byTuple[tupleKey(e.SourceType, e.SourceID, e.LineStart, e.LineEnd)]; ok {
			return hit, true
		}
		return schema.EvidenceEntry{}, false
	}
	if ref.Literal != "" {
		if hit, ok := r.byHash[ref.Literal]; ok {
			return hit, true
		}
		if hit, ok := r.byExcerpt[strings.TrimSpace(ref.Literal)]; ok {
			return hit, true
		}
		return schema.EvidenceEntry{}, false
	}
	if ref.Index != nil {
		i := *ref.Index
		if i >= 0 && i < len(r.evidence) {
			return r.evidence[i], true
		}
	}
	return schema.EvidenceEntry{}, false
}

// ResolveAll resolves a reference list in order, dropping what cannot be
// resolved.
func (r *Resolver) ResolveAll(refs []Ref) []schema.EvidenceEntry {
	var out []schema.EvidenceEntry
	for _, ref := range refs {
		if e, ok := r.Resolve(ref); ok {
			out = append(out, e)
		}
	}
	return out
}

func tupleKey(sourceType, sourceID string, lineStart, lineEnd int) string {
	return fmt.Sprintf("%s:%s:%d:%d", sourceType, sourceID, lineStart, lineEnd)
}
