// Package prompt holds the versioned prompt registry and the sectioned
// prompt renderer for pipeline turns.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Prompt is one registered prompt body plus its front-matter metadata.
type Prompt struct {
	Text     string
	Metadata map[string]string
	Name     string
}

// Version reads the prompt_version metadata key.
func (p Prompt) Version() string { return p.Metadata["prompt_version"] }

const triagePrompt = `---
prompt_version: v2
---
You are an infrastructure troubleshooting assistant. Given an incident frame
extracted from operator-pasted logs, propose ranked hypotheses for the root
cause. Every hypothesis must cite entries from the evidence map verbatim;
never invent evidence. Respond with a single JSON object containing
"hypotheses" (each with id, rank, confidence, explanation, citations) and
optional "runbook_steps".`

const explainPrompt = `---
prompt_version: v1
---
You are an infrastructure troubleshooting assistant answering a follow-up
question about a previously analyzed incident. Ground every claim in the
incident frame's evidence map; cite entries verbatim and never invent
evidence. Respond with a single JSON object containing "hypotheses",
and optional "runbook_steps", "proposed_fix", "risk_notes", "rollback"
and "next_checks".`

// Registry maps endpoint names to prompts. Read-only after construction.
type Registry struct {
	prompts map[string]Prompt
}

// NewRegistry loads the embedded default prompts.
func NewRegistry() *Registry {
	r := &Registry{prompts: map[string]Prompt{}}
	r.prompts["triage"] = parsePrompt("triage", triagePrompt)
	r.prompts["explain"] = parsePrompt("explain", explainPrompt)
	return r
}

// LoadDir overrides registered prompts with <endpoint>.txt files from dir,
// in the same front-matter format as the embedded defaults. Endpoints without
// a file keep their default.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("prompt: read dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("prompt: read %s: %w", entry.Name(), err)
		}
		r.prompts[name] = parsePrompt(name, string(data))
	}
	return nil
}

// Get returns the prompt registered for an endpoint.
func (r *Registry) Get(endpoint string) (Prompt, error) {
	p, ok := r.prompts[endpoint]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt: unknown endpoint %q", endpoint)
	}
	return p, nil
}

// parsePrompt splits an optional --- front-matter block of key: value lines
// from the prompt body.
func parsePrompt(name, text string) Prompt {
	p := Prompt{Name: name, Metadata: map[string]string{}}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		p.Text = strings.TrimSpace(text)
		return p
	}
	bodyStart := len(lines)
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			bodyStart = i + 1
			break
		}
		if key, value, ok := strings.Cut(lines[i], ":"); ok {
			p.Metadata[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	p.Text = strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))
	p.Metadata["designed_for_endpoint"] = name
	return p
}
