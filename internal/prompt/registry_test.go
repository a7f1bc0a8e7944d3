package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"faultline/internal/schema"
)

func TestRegistryVersions(t *testing.T) {
	r := NewRegistry()
	triage, err := r.Get("triage")
	if err != nil {
		t.Fatalf("get triage: %v", err)
	}
	if triage.Version() != "v2" {
		t.Fatalf("unexpected triage version %q", triage.Version())
	}
	if strings.Contains(triage.Text, "---") {
		t.Fatalf("front matter leaked into body: %q", triage.Text)
	}
	if _, err := r.Get("nope"); err == nil {
		t.Fatalf("unknown endpoint must error")
	}
}

func TestLoadDirOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	override := "---\nprompt_version: v9\n---\nTriage override body."
	if err := os.WriteFile(filepath.Join(dir, "triage.txt"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadDir(dir); err != nil {
		t.Fatalf("load dir: %v", err)
	}
	triage, err := r.Get("triage")
	if err != nil {
		t.Fatalf("get triage: %v", err)
	}
	if triage.Version() != "v9" || triage.Text != "Triage override body." {
		t.Fatalf("override not applied: %+v", triage)
	}
	explain, err := r.Get("explain")
	if err != nil {
		t.Fatalf("get explain: %v", err)
	}
	if explain.Version() != "v1" {
		t.Fatalf("endpoints without a file must keep the default, got %q", explain.Version())
	}
	if err := r.LoadDir(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("missing dir must error")
	}
}

func TestRenderSections(t *testing.T) {
	r := NewRegistry()
	p, _ := r.Get("triage")
	frame := &schema.IncidentFrame{
		FrameID:   "f1",
		RequestID: "req-1",
		EvidenceMap: []schema.EvidenceEntry{
			{SourceType: "log", SourceID: "raw-input", LineStart: 1, LineEnd: 1, ExcerptHash: "abc"},
		},
	}
	out := Render(p, TurnInput{
		ConversationID: "conv-1",
		InputText:      "Error: boom",
		Frame:          frame,
		RecentEvents:   []string{"turn 1: triage"},
	})
	for _, section := range []string{"[INSTRUCTIONS]", "[INPUT]", "[INCIDENT_FRAME]", "[EVIDENCE_MAP]", "[CONVERSATION_CONTEXT]", "[OUTPUT_FORMAT]"} {
		if !strings.Contains(out, section) {
			t.Fatalf("missing section %s in rendered prompt", section)
		}
	}
	if !strings.Contains(out, `"excerpt_hash":"abc"`) {
		t.Fatalf("evidence map not rendered: %s", out)
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	p := Prompt{Text: "Do the thing.", Metadata: map[string]string{}}
	out := Render(p, TurnInput{InputText: "hello"})
	if strings.Contains(out, "[INCIDENT_FRAME]") || strings.Contains(out, "[CONVERSATION_CONTEXT]") {
		t.Fatalf("empty sections must be omitted: %s", out)
	}
}
