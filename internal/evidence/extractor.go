package evidence

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"faultline/internal/schema"
)

// ParserVersion is stamped on every frame so stored frames can be
// re-interpreted when extraction rules change.
const ParserVersion = "v0.2"

var serviceKeywords = []string{"api", "worker", "gateway", "frontend", "backend"}

var infraKeywords = []string{"ecs", "alb", "lambda", "dynamodb", "s3", "rds", "redis", "cloudwatch"}

// domainRules map keyword pairs to a suspected failure domain. Order matters:
// the first matching rule wins.
var domainRules = []struct {
	tokens []string
	domain schema.FailureDomain
}{
	{[]string{"timeout", "latency"}, schema.DomainPerformance},
	{[]string{"permission", "access denied"}, schema.DomainSecurity},
	{[]string{"connection", "dns"}, schema.DomainNetwork},
	{[]string{"null", "exception"}, schema.DomainApplication},
}

// Extractor dispatches raw text across the family registry and assembles an
// incident frame. The registry is read-only after construction, so one
// Extractor is safe for concurrent turns.
type Extractor struct {
	parsers []FamilyParser
}

// NewExtractor builds an extractor over the default family registry.
func NewExtractor() *Extractor {
	return &Extractor{parsers: DefaultParsers()}
}

// Parse classifies rawText and returns a frame with located evidence spans.
// It never fails: unclassifiable input degrades to the generic family with
// low confidence.
func (e *Extractor) Parse(rawText, requestID, conversationID string) *schema.IncidentFrame {
	n := Normalize(rawText)
	parser, score := selectParser(e.parsers, n)
	res := parser.Extract(n)

	frame := &schema.IncidentFrame{
		FrameID:               uuid.NewString(),
		ConversationID:        conversationID,
		RequestID:             requestID,
		Source:                "user_input",
		ParserVersion:         ParserVersion,
		ParseConfidence:       scoreToConfidence(score, res.PrimaryErrorSignature != ""),
		CreatedAt:             time.Now().UTC(),
		PrimaryErrorSignature: res.PrimaryErrorSignature,
		SecondarySignatures:   res.SecondarySignatures,
		Services:              matchKeywords(rawText, serviceKeywords),
		InfraComponents:       unionKeywords(res.InfraComponents, matchKeywords(rawText, infraKeywords)),
		SuspectedFailureDomain: guessDomain(rawText),
		EvidenceMap:           res.EvidenceMap,
	}
	if len(n.Timestamps) > 0 {
		frame.TimeWindow = &schema.TimeWindow{
			Start: n.Timestamps[0],
			End:   n.Timestamps[len(n.Timestamps)-1],
		}
	}
	return frame
}

// Family reports which family would win for rawText, without extracting.
func (e *Extractor) Family(rawText string) string {
	parser, _ := selectParser(e.parsers, Normalize(rawText))
	return parser.Family()
}

func scoreToConfidence(score int, hasPrimary bool) float64 {
	switch {
	case score <= 0:
		if hasPrimary {
			return 0.25
		}
		return 0.15
	case score >= 6:
		return 0.85
	case score >= 3:
		return 0.70
	default:
		return 0.50
	}
}

func matchKeywords(rawText string, keywords []string) []string {
	lowered := strings.ToLower(rawText)
	var found []string
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func unionKeywords(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func guessDomain(rawText string) schema.FailureDomain {
	lowered := strings.ToLower(rawText)
	for _, rule := range domainRules {
		for _, token := range rule.tokens {
			if strings.Contains(lowered, token) {
				return rule.domain
			}
		}
	}
	return schema.DomainNone
}
