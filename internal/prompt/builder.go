package prompt

import (
	"bytes"
	"strings"

	"faultline/internal/schema"
	"faultline/internal/util/jsonutil"
)

// TurnInput gathers everything one rendered turn prompt needs.
type TurnInput struct {
	ConversationID string
	InputText      string
	Frame          *schema.IncidentFrame
	RecentEvents   []string
}

// Render produces the full sectioned prompt for one turn. Sections with no
// content are omitted.
func Render(p Prompt, in TurnInput) string {
	var buf bytes.Buffer
	writeSection(&buf, "INSTRUCTIONS", p.Text)
	writeSection(&buf, "CONVERSATION_ID", in.ConversationID)
	writeSection(&buf, "INPUT", in.InputText)
	if in.Frame != nil {
		writeSection(&buf, "INCIDENT_FRAME", mustJSON(in.Frame))
		writeSection(&buf, "EVIDENCE_MAP", mustJSON(in.Frame.EvidenceMap))
	}
	if len(in.RecentEvents) > 0 {
		writeSection(&buf, "CONVERSATION_CONTEXT", strings.Join(in.RecentEvents, "\n"))
	}
	writeSection(&buf, "OUTPUT_FORMAT", "Return ONLY valid JSON.")
	return strings.TrimSpace(buf.String()) + "\n"
}

func mustJSON(v any) string {
	b, err := jsonutil.MarshalNoEscape(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}
