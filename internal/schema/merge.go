package schema

// Merge folds a later frame from the same conversation into prev, returning a
// new frame. Signature, service and infra sets are unioned preserving first
// occurrence order, evidence maps are concatenated, and the higher of the two
// parse confidences wins. Identifiers and timestamps stay with the newer
// frame so the merged frame addresses the current turn.
func Merge(prev, next IncidentFrame) IncidentFrame {
	out := next
	out.ParseConfidence = maxFloat(prev.ParseConfidence, next.ParseConfidence)
	if out.PrimaryErrorSignature == "" {
		out.PrimaryErrorSignature = prev.PrimaryErrorSignature
	}
	out.SecondarySignatures = unionStrings(prev.SecondarySignatures, next.SecondarySignatures)
	out.Services = unionStrings(prev.Services, next.Services)
	out.InfraComponents = unionStrings(prev.InfraComponents, next.InfraComponents)
	if out.SuspectedFailureDomain == DomainNone {
		out.SuspectedFailureDomain = prev.SuspectedFailureDomain
	}
	if out.TimeWindow == nil {
		out.TimeWindow = prev.TimeWindow
	}
	evidence := make([]EvidenceEntry, 0, len(prev.EvidenceMap)+len(next.EvidenceMap))
	evidence = append(evidence, prev.EvidenceMap...)
	evidence = append(evidence, next.EvidenceMap...)
	out.EvidenceMap = evidence
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
