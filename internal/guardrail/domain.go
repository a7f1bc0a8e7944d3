package guardrail

import (
	"regexp"
	"strings"
)

var domainTokenKeywords = map[string]struct{}{
	"terraform": {}, "pulumi": {}, "cloudformation": {}, "ansible": {},
	"kubernetes": {}, "k8s": {}, "docker": {}, "helm": {},
	"ecs": {}, "eks": {}, "lambda": {}, "s3": {}, "iam": {}, "vpc": {},
	"gitlab": {}, "github": {}, "jenkins": {}, "circleci": {},
	"pipeline": {}, "ci/cd": {}, "cicd": {}, "build": {}, "deploy": {},
	"release": {}, "infra": {}, "iac": {},
	"observability": {}, "logging": {}, "monitoring": {}, "alert": {},
	"prometheus": {}, "grafana": {}, "cloudwatch": {},
	"http": {}, "api": {}, "yaml": {}, "json": {}, "sql": {},
	"database": {}, "redis": {}, "postgres": {}, "mysql": {},
	"python": {}, "node": {}, "typescript": {}, "javascript": {},
	"golang": {}, "java": {}, "rust": {}, "linux": {}, "nginx": {},
	"kafka": {}, "queue": {}, "cache": {},
}

var domainPhraseKeywords = []string{
	"stack trace", "traceback", "error", "exception", "failed", "timeout",
	"infra as code", "infrastructure as code",
}

var (
	tokenRe       = regexp.MustCompile(`[a-z0-9+/.-]+`)
	codeKeywordRe = regexp.MustCompile(`(?i)\b(class|def|function|SELECT|INSERT|UPDATE|FROM)\b`)
	sourceFileRe  = regexp.MustCompile(`\b[A-Za-z0-9_/.-]+\.(py|js|ts|go|java|rb|tf|yaml|yml|json|sh|ps1)\b`)
	httpStatusRe  = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)
)

// IsAllowedDomain reports whether free text plausibly belongs to the
// infrastructure troubleshooting domain. Empty text is allowed; the caller
// decides what an empty question means.
func IsAllowedDomain(text string) bool {
	if text == "" {
		return true
	}
	lowered := strings.ToLower(text)
	tokens := make(map[string]struct{})
	for _, tok := range tokenRe.FindAllString(lowered, -1) {
		tokens[tok] = struct{}{}
	}
	for kw := range domainTokenKeywords {
		if _, ok := tokens[kw]; ok {
			return true
		}
	}
	for _, phrase := range domainPhraseKeywords {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	if strings.Contains(text, "```") {
		return true
	}
	if codeKeywordRe.MatchString(text) {
		return true
	}
	if sourceFileRe.MatchString(text) {
		return true
	}
	if httpStatusRe.MatchString(text) {
		return true
	}
	return false
}

var nonInformativeAnswers = map[string]struct{}{
	"no": {}, "nope": {}, "idk": {}, "i dont know": {}, "i don't know": {},
	"dont know": {}, "don't know": {}, "not sure": {}, "unsure": {},
	"unknown": {}, "n/a": {}, "na": {}, "none": {}, "cant": {}, "can't": {},
	"cannot": {}, "dont have": {}, "don't have": {}, "dont have it": {},
	"don't have it": {}, "i dont have it": {}, "i don't have it": {},
	"not available": {}, "no idea": {},
}

// IsNonInformative reports whether an operator answer carries no usable
// content.
func IsNonInformative(answer string) bool {
	if answer == "" {
		return true
	}
	_, ok := nonInformativeAnswers[normalizeAnswer(answer)]
	return ok
}

func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var (
	kvPairRe    = regexp.MustCompile(`\b\w+\s*[:=]\s*[^,\s]+`)
	jsonFieldRe = regexp.MustCompile(`"[^"]+"\s*:\s*"[^"]+"`)
	errorWordRe = regexp.MustCompile(`\b(error|invalid|exception|failed|denied)\b`)
	acronymRe   = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
)

func looksLikeStructuredPayload(answer string) bool {
	if answer == "" {
		return false
	}
	if strings.ContainsAny(answer, "{}<>\n") {
		return true
	}
	return kvPairRe.MatchString(answer) || jsonFieldRe.MatchString(answer)
}

func looksLikeErrorMessage(answer string) bool {
	if answer == "" {
		return false
	}
	normalized := normalizeAnswer(answer)
	for _, token := range []string{"error", "invalid", "exception", "failed", "denied"} {
		if strings.Contains(normalized, token) {
			return true
		}
	}
	if strings.Contains(answer, ":") && len(answer) > 8 {
		return true
	}
	return acronymRe.MatchString(answer)
}

var (
	requestPayloadPhrases  = []string{"request payload", "request body", "request json", "request xml"}
	responsePayloadPhrases = []string{"response payload", "response body", "response json", "response xml"}
	errorDetailPhrases     = []string{"error response", "error message", "exact error", "stack trace", "stacktrace", "trace", "logs", "log"}
)

// MissingRequiredDetails reports which details a question asked for that the
// operator's answer still lacks: "request payload" and/or "error response".
func MissingRequiredDetails(question, answer string) []string {
	if question == "" || answer == "" {
		return nil
	}
	questionNorm := normalizeAnswer(question)
	var missing []string

	payloadRequested := containsAny(questionNorm, requestPayloadPhrases)
	responseRequested := containsAny(questionNorm, responsePayloadPhrases)
	payloadGeneric := strings.Contains(questionNorm, "payload") && !payloadRequested && !responseRequested
	if (payloadRequested || payloadGeneric) && !answerContainsRequestPayload(answer) {
		missing = append(missing, "request payload")
	}

	errorRequested := containsAny(questionNorm, errorDetailPhrases)
	if (errorRequested || responseRequested) && !answerContainsErrorResponse(answer) {
		missing = append(missing, "error response")
	}
	return missing
}

func answerContainsRequestPayload(answer string) bool {
	normalized := normalizeAnswer(answer)
	if strings.Contains(normalized, "payload") && !looksLikeStructuredPayload(answer) {
		return false
	}
	if errorWordRe.MatchString(normalized) {
		return false
	}
	return looksLikeStructuredPayload(answer)
}

func answerContainsErrorResponse(answer string) bool {
	normalized := normalizeAnswer(answer)
	if strings.Contains(normalized, "payload") && !errorWordRe.MatchString(normalized) {
		return false
	}
	return looksLikeErrorMessage(answer)
}

// RephraseMissingDetails produces the follow-up ask for what is still
// missing.
func RephraseMissingDetails(missing []string) string {
	if len(missing) == 0 {
		return "Could you share the missing detail? A redacted snippet or field list works too."
	}
	if len(missing) == 1 && missing[0] == "request payload" {
		return "I still need the request payload. If you can't share raw values, paste a redacted snippet or list the fields you send."
	}
	if len(missing) == 1 && missing[0] == "error response" {
		return "I still need the exact error response. If you can't share raw values, paste a redacted snippet or summarize the error code/message."
	}
	return "I still need the missing details. If you can't share raw values, paste a redacted snippet or list the fields."
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
