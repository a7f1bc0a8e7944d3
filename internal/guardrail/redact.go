package guardrail

import (
	"regexp"
	"strconv"
	"strings"
)

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

var scrubRules = []redactionRule{
	{regexp.MustCompile(`-----BEGIN [\s\S]+? PRIVATE KEY-----[\s\S]+?-----END [\s\S]+? PRIVATE KEY-----`), "[PRIVATE_KEY]"},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), "[AWS_ACCESS_KEY_ID]"},
	{regexp.MustCompile(`\bASIA[0-9A-Z]{16}\b`), "[AWS_ACCESS_KEY_ID]"},
	{regexp.MustCompile(`\b[A-Za-z0-9/+=]{40}\b`), "[AWS_SECRET_ACCESS_KEY]"},
	{regexp.MustCompile(`(?i)\barn:aws[a-z-]*:[^\s]+`), "[AWS_ARN]"},
	{regexp.MustCompile(`\b\d{12}\b`), "[ACCOUNT_ID]"},
	{regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`), "[JWT]"},
	{regexp.MustCompile(`\bghp_[A-Za-z0-9]{36,}\b`), "[GITHUB_TOKEN]"},
	{regexp.MustCompile(`\bgho_[A-Za-z0-9]{36,}\b`), "[GITHUB_TOKEN]"},
	{regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`), "[SLACK_TOKEN]"},
	{regexp.MustCompile(`(?i)\bAuthorization:\s*Bearer\s+[A-Za-z0-9._\-+/=]+`), "Authorization: Bearer [BEARER_TOKEN]"},
	{regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`), "[EMAIL]"},
	{regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`), "[IP_ADDRESS]"},
	{regexp.MustCompile(`(?i)\b(?:[0-9A-F]{2}[:-]){5}[0-9A-F]{2}\b`), "[MAC_ADDRESS]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
}

var cardCandidate = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)

// ScrubSensitiveText removes secrets and personal identifiers from raw text
// before it leaves the process (artifact storage, prompts, logs). Returns
// the scrubbed text and how many replacements were made.
func ScrubSensitiveText(text string) (string, int) {
	hits := 0
	for _, rule := range scrubRules {
		matches := rule.pattern.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		hits += len(matches)
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	text = cardCandidate.ReplaceAllStringFunc(text, func(candidate string) string {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, candidate)
		if len(digits) >= 13 && len(digits) <= 19 && luhnValid(digits) {
			hits++
			return "[CARD_NUMBER]"
		}
		return candidate
	})
	return text, hits
}

// luhnValid keeps the card rule from eating arbitrary long digit runs.
func luhnValid(digits string) bool {
	total := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d, err := strconv.Atoi(string(digits[i]))
		if err != nil {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		total += d
		double = !double
	}
	return total%10 == 0
}
