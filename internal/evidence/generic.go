package evidence

// GenericParser is the registered fallback: it scores 1 whenever any line
// carries a generic error token, and otherwise signs off on the first line.
type GenericParser struct{}

func (p *GenericParser) Family() string { return "generic" }

func (p *GenericParser) MatchScore(n *Normalized) int {
	for _, line := range n.Lines {
		if looksLikeError(line.Lowered) {
			return 1
		}
	}
	return 0
}

func (p *GenericParser) Extract(n *Normalized) *Result {
	res := &Result{}
	for _, line := range n.Lines {
		if looksLikeError(line.Lowered) {
			res.PrimaryErrorSignature = truncateSignature(line.Text)
			res.EvidenceMap = append(res.EvidenceMap, makeEvidence("raw-input", line.Number, line.Number, line.Text))
			break
		}
	}
	if res.PrimaryErrorSignature == "" && len(n.Lines) > 0 {
		first := n.Lines[0]
		res.PrimaryErrorSignature = truncateSignature(first.Text)
		res.EvidenceMap = append(res.EvidenceMap, makeEvidence("raw-input", first.Number, first.Number, first.Text))
	}
	return res
}
