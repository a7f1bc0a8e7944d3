package evidence

import "strings"

// CloudWatchParser recognizes managed-log-service exports: log group/stream
// headers and event ids.
type CloudWatchParser struct{}

func (p *CloudWatchParser) Family() string { return "cloudwatch" }

func (p *CloudWatchParser) MatchScore(n *Normalized) int {
	score := 0
	for _, line := range n.Lines {
		if strings.Contains(line.Lowered, "cloudwatch") {
			score += 2
		}
		if strings.Contains(line.Lowered, "log group") || strings.Contains(line.Lowered, "log stream") {
			score += 2
		}
		if strings.Contains(line.Lowered, "eventid") || strings.Contains(line.Lowered, "event id") {
			score++
		}
		if strings.Contains(line.Lowered, "awslogs") {
			score++
		}
	}
	return score
}

func (p *CloudWatchParser) Extract(n *Normalized) *Result {
	res := &Result{InfraComponents: []string{"cloudwatch"}}
	for _, line := range n.Lines {
		if looksLikeError(line.Lowered) {
			res.PrimaryErrorSignature = truncateSignature(line.Text)
			res.EvidenceMap = append(res.EvidenceMap, makeEvidence("raw-input", line.Number, line.Number, line.Text))
			break
		}
	}
	return res
}
