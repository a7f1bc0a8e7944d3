package evidence

import "strings"

const tracebackHeader = "traceback (most recent call last):"

// TracebackParser recognizes Python stack traces. The header line scores
// sharply so a pasted traceback beats the generic family even when short.
type TracebackParser struct{}

func (p *TracebackParser) Family() string { return "python-traceback" }

func (p *TracebackParser) MatchScore(n *Normalized) int {
	score := 0
	for _, line := range n.Lines {
		if strings.Contains(line.Lowered, tracebackHeader) {
			score += 4
		}
		if strings.HasPrefix(strings.TrimSpace(line.Lowered), `file "`) && strings.Contains(line.Lowered, ", line") {
			score++
		}
		if strings.Contains(line.Lowered, "exception") || strings.Contains(line.Lowered, "error") {
			score++
		}
	}
	return score
}

// Extract captures the contiguous traceback block from the header onward.
// Once the block is longer than 6 lines, the first non-indented line ends it.
// The last captured line is the raised error and becomes the primary
// signature; up to 3 of the first frames referencing a source file become
// secondary signatures.
func (p *TracebackParser) Extract(n *Normalized) *Result {
	res := &Result{}
	var block []Line
	for _, line := range n.Lines {
		if strings.Contains(line.Lowered, tracebackHeader) {
			block = append(block, line)
			continue
		}
		if len(block) == 0 {
			continue
		}
		block = append(block, line)
		if strings.TrimSpace(line.Text) != "" && !strings.HasPrefix(line.Text, " ") {
			if len(block) > 6 {
				break
			}
		}
	}
	if len(block) == 0 {
		return res
	}
	last := block[len(block)-1]
	res.PrimaryErrorSignature = truncateSignature(last.Text)
	res.EvidenceMap = append(res.EvidenceMap, makeEvidence("raw-input", last.Number, last.Number, last.Text))
	limit := 3
	if len(block) < limit {
		limit = len(block)
	}
	for _, line := range block[:limit] {
		if len(res.SecondarySignatures) >= 3 {
			break
		}
		if strings.Contains(line.Lowered, `file "`) {
			res.SecondarySignatures = append(res.SecondarySignatures, truncateSignature(line.Text))
			res.EvidenceMap = append(res.EvidenceMap, makeEvidence("raw-input", line.Number, line.Number, line.Text))
		}
	}
	return res
}
