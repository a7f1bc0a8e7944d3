package evidence

import "strings"

// TerraformParser recognizes terraform CLI output: Error:-prefixed lines and
// "on <file>.tf line N" source references.
type TerraformParser struct{}

func (p *TerraformParser) Family() string { return "terraform" }

func (p *TerraformParser) MatchScore(n *Normalized) int {
	score := 0
	for _, line := range n.Lines {
		if strings.Contains(line.Lowered, "terraform") {
			score += 2
		}
		if strings.Contains(line.Lowered, "error:") {
			score++
		}
		if strings.Contains(line.Lowered, ".tf") && strings.Contains(line.Lowered, "line") {
			score += 2
		}
		if strings.Contains(line.Lowered, "module.") {
			score++
		}
	}
	return score
}

func (p *TerraformParser) Extract(n *Normalized) *Result {
	res := &Result{InfraComponents: []string{"terraform"}}
	for _, line := range n.Lines {
		if strings.HasPrefix(line.Lowered, "error:") {
			res.PrimaryErrorSignature = truncateSignature(line.Text)
			res.EvidenceMap = append(res.EvidenceMap, makeEvidence("raw-input", line.Number, line.Number, line.Text))
			break
		}
	}
	if res.PrimaryErrorSignature == "" {
		for _, line := range n.Lines {
			if strings.Contains(line.Lowered, "error:") {
				res.PrimaryErrorSignature = truncateSignature(line.Text)
				res.EvidenceMap = append(res.EvidenceMap, makeEvidence("raw-input", line.Number, line.Number, line.Text))
				break
			}
		}
	}
	for _, line := range n.Lines {
		if len(res.SecondarySignatures) >= 3 {
			break
		}
		if strings.Contains(line.Lowered, "on") && strings.Contains(line.Lowered, ".tf") && strings.Contains(line.Lowered, "line") {
			res.SecondarySignatures = append(res.SecondarySignatures, truncateSignature(line.Text))
			res.EvidenceMap = append(res.EvidenceMap, makeEvidence("raw-input", line.Number, line.Number, line.Text))
		}
	}
	return res
}
