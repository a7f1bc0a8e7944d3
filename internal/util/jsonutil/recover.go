package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoObject means the text contains no object boundary at all.
	ErrNoObject = errors.New("jsonutil: no JSON object found")
	// ErrIrreparable means an object boundary was found but no repair
	// strategy produced valid JSON.
	ErrIrreparable = errors.New("jsonutil: object found but irreparable")
)

// DefaultMaxCommaInserts bounds the missing-delimiter repair loop. The bound
// is a safety limit against adversarial input, not a semantic constant.
const DefaultMaxCommaInserts = 3

// RecoverOptions tunes the repair ladder.
type RecoverOptions struct {
	// MaxCommaInserts caps how many missing commas may be inserted before
	// giving up. Zero means DefaultMaxCommaInserts.
	MaxCommaInserts int
}

// RecoverObject runs the full repair ladder with default options.
func RecoverObject(text string) (map[string]any, error) {
	return RecoverObjectOpts(text, RecoverOptions{})
}

// RecoverObjectOpts turns a text blob believed to contain one JSON object
// into that object. Repairs are attempted in order on parse failure:
// prose-wrap extraction, invalid-escape repair, balanced-bracket truncation
// recovery, forced closure, and bounded comma insertion. Every repair is
// idempotent on already-valid input. Irreparable input is a hard failure,
// never a best-effort empty object.
func RecoverObjectOpts(text string, opts RecoverOptions) (map[string]any, error) {
	maxCommas := opts.MaxCommaInserts
	if maxCommas <= 0 {
		maxCommas = DefaultMaxCommaInserts
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoObject
	}
	rest := text[start:]

	var lastErr error
	if seg, closed := balancedSegment(rest); closed {
		obj, err := decodeWithRepairs(seg, maxCommas)
		if err == nil {
			return obj, nil
		}
		lastErr = err
	}

	// Truncated mid-stream (or the balanced candidate stayed broken):
	// close any open string, then one brace per unmatched open brace.
	forced := forceClose(repairEscapes(rest))
	obj, err := decodeWithRepairs(forced, maxCommas)
	if err == nil {
		return obj, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrIrreparable, lastErr)
}

// decodeWithRepairs parses a candidate object, applying escape repair and
// bounded comma insertion on failure.
func decodeWithRepairs(candidate string, maxCommas int) (map[string]any, error) {
	obj, err := unmarshalObject(candidate)
	if err == nil {
		return obj, nil
	}
	repaired := repairEscapes(candidate)
	obj, err = unmarshalObject(repaired)
	if err == nil {
		return obj, nil
	}
	return insertMissingCommas(repaired, maxCommas)
}

func unmarshalObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// balancedSegment scans from the opening brace tracking brace depth and
// string state, remembering the offset at which depth last returned to zero.
// closed reports whether a matching close brace was ever reached.
func balancedSegment(s string) (segment string, closed bool) {
	depth := 0
	inString := false
	escape := false
	end := -1
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
	}
	if end < 0 {
		return s, false
	}
	return s[:end], true
}

// validEscapes are the characters JSON permits after a backslash.
const validEscapes = `"\/bfnrtu`

// repairEscapes fixes string contents in a single left-to-right scan:
// raw newlines, tabs and carriage returns inside strings become their
// escaped form, and a backslash not followed by a recognized escape
// character is doubled. Idempotent on valid input.
func repairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escape := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			b.WriteByte(ch)
			continue
		}
		if escape {
			b.WriteByte(ch)
			escape = false
			continue
		}
		switch ch {
		case '\\':
			if i+1 < len(s) && strings.IndexByte(validEscapes, s[i+1]) >= 0 {
				b.WriteByte(ch)
				escape = true
			} else {
				b.WriteString(`\\`)
			}
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '"':
			inString = false
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// forceClose completes a truncated object: closes an open string, drops a
// dangling trailing comma or colon, then appends one closing brace per
// unmatched open brace. No-op on already-balanced input.
func forceClose(s string) string {
	depth := 0
	inString := false
	escape := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	if depth <= 0 && !inString {
		return s
	}
	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escape {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\n\r")
	switch {
	case strings.HasSuffix(out, ","):
		out = out[:len(out)-1]
	case strings.HasSuffix(out, ":"):
		out += "null"
	}
	for i := 0; i < depth; i++ {
		out += "}"
	}
	return out
}

// insertMissingCommas retries a structural parse failure by inserting a comma
// where two adjacent value boundaries meet at the reported offset. Bounded to
// maxInserts attempts so adversarial input cannot loop forever.
func insertMissingCommas(s string, maxInserts int) (map[string]any, error) {
	var lastErr error
	for attempt := 0; attempt < maxInserts; attempt++ {
		obj, err := unmarshalObject(s)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		var syn *json.SyntaxError
		if !errors.As(err, &syn) {
			return nil, err
		}
		pos := int(syn.Offset) - 1 // offset points one past the offending byte
		if pos < 0 || pos >= len(s) {
			return nil, err
		}
		if !isOpeningBoundary(s[pos]) {
			return nil, err
		}
		prev := pos - 1
		for prev >= 0 && isSpace(s[prev]) {
			prev--
		}
		if prev < 0 || !isClosingBoundary(s[prev]) {
			return nil, err
		}
		s = s[:pos] + "," + s[pos:]
	}
	return nil, lastErr
}

func isOpeningBoundary(ch byte) bool {
	return ch == '"' || ch == '{' || ch == '['
}

func isClosingBoundary(ch byte) bool {
	return ch == '"' || ch == '}' || ch == ']'
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
