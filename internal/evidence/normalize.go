// Package evidence classifies raw operator-pasted failure text into a log
// family and extracts a typed, evidence-cited incident frame.
package evidence

import (
	"regexp"
	"strings"
)

// Line is one 1-indexed input line with a lowercased copy for matching.
// Evidence hashes are always computed over Text, never Lowered.
type Line struct {
	Number  int
	Text    string
	Lowered string
}

// Normalized is the shared input every family parser scores and extracts
// against.
type Normalized struct {
	RawText    string
	Lines      []Line
	Timestamps []string
}

var timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T\s]\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?`)

// Normalize splits raw text into 1-indexed lines with lowercased copies and
// collects ISO-8601-like timestamps in line order.
func Normalize(rawText string) *Normalized {
	n := &Normalized{RawText: rawText}
	for idx, text := range splitLines(rawText) {
		n.Lines = append(n.Lines, Line{
			Number:  idx + 1,
			Text:    text,
			Lowered: strings.ToLower(text),
		})
		if ts := timestampRe.FindString(text); ts != "" {
			n.Timestamps = append(n.Timestamps, ts)
		}
	}
	return n
}

// splitLines behaves like strings.Split on newlines but drops a single
// trailing empty line, matching how operators paste log tails.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// looksLikeError is the generic error-token test shared by families.
func looksLikeError(lowered string) bool {
	for _, token := range []string{"error", "exception", "traceback", "fatal", "panic", "failed"} {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}
