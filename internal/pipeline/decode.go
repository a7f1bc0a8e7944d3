package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"faultline/internal/guardrail"
	"faultline/internal/schema"
	"faultline/internal/util/jsonutil"
)

// ErrBadModelOutput marks a model response whose structure could not be
// recovered or validated. The caller sees one failure mode for both.
var ErrBadModelOutput = errors.New("pipeline: unusable model output")

// modelHypothesis mirrors one hypothesis as the model writes it. Citations
// stay in reference form until the normalization stage resolves them.
type modelHypothesis struct {
	ID          string          `json:"id"`
	Rank        int             `json:"rank"`
	Confidence  float64         `json:"confidence"`
	Explanation string          `json:"explanation"`
	Citations   []guardrail.Ref `json:"citations"`
}

// modelOutput is the full decoded model payload for either endpoint.
// Triage responses use only the first two fields; explain responses may
// carry the remediation extras.
type modelOutput struct {
	Hypotheses   []modelHypothesis    `json:"hypotheses"`
	RunbookSteps []schema.RunbookStep `json:"runbook_steps"`
	ProposedFix  string               `json:"proposed_fix"`
	RiskNotes    []string             `json:"risk_notes"`
	Rollback     []string             `json:"rollback"`
	NextChecks   []string             `json:"next_checks"`
	Category     string               `json:"category"`
}

const modelOutputSchema = `{
  "type": "object",
  "required": ["hypotheses"],
  "properties": {
    "hypotheses": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["explanation"],
        "properties": {
          "id": {"type": "string"},
          "rank": {"type": "integer"},
          "confidence": {"type": "number"},
          "explanation": {"type": "string"},
          "citations": {"type": "array"}
        }
      }
    },
    "runbook_steps": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "step_number": {"type": "integer"},
          "description": {"type": "string"},
          "command_or_console_path": {"type": "string"},
          "estimated_time_mins": {"type": "integer"}
        }
      }
    },
    "proposed_fix": {"type": "string"},
    "risk_notes": {"type": "array", "items": {"type": "string"}},
    "rollback": {"type": "array", "items": {"type": "string"}},
    "next_checks": {"type": "array", "items": {"type": "string"}},
    "category": {"type": "string"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaCompile  error
)

func outputSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, schemaCompile = compiler.Compile([]byte(modelOutputSchema))
	})
	return compiledSchema, schemaCompile
}

// decodeModelOutput recovers a JSON object from raw model text, validates it
// against the output schema, and decodes it. Recovery failures and schema
// violations collapse into ErrBadModelOutput.
func decodeModelOutput(text string, opts jsonutil.RecoverOptions) (*modelOutput, error) {
	obj, err := jsonutil.RecoverObjectOpts(text, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModelOutput, err)
	}
	payload, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encode: %v", ErrBadModelOutput, err)
	}
	sch, err := outputSchema()
	if err != nil {
		return nil, fmt.Errorf("pipeline: compile output schema: %w", err)
	}
	if result := sch.ValidateJSON(payload); !result.IsValid() {
		return nil, fmt.Errorf("%w: schema violation: %v", ErrBadModelOutput, result.Errors)
	}
	var out modelOutput
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrBadModelOutput, err)
	}
	return &out, nil
}
