package assess

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/llm"
)

const (
	assessmentTool = "record_assessment"
	summaryTool    = "record_executive_summary"
)

// structuredOutput pairs the tool definition offered to the model with the
// resolved schema its answer is validated against.
type structuredOutput struct {
	tool     llm.ToolSchema
	resolved *jsonschema.Resolved
}

func intp(n int) *int { return &n }

func str(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", MinLength: intp(1), Description: desc}
}

func enum(desc string, values ...any) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Enum: values, Description: desc}
}

func object(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func judgment(desc string) *jsonschema.Schema {
	s := object([]string{"summary", "importance"}, map[string]*jsonschema.Schema{
		"summary":    str("One or two sentences of evidence-based judgment."),
		"importance": enum("How much this dimension mattered.", "low", "medium", "high"),
	})
	s.Description = desc
	return s
}

func assessmentSchema() *jsonschema.Schema {
	return object(
		[]string{"role", "impact", "technical_quality", "collaboration", "alignment_with_goals", "referenced_urls"},
		map[string]*jsonschema.Schema{
			"role":                 enum("The actor's role on this contribution.", "author", "reviewer", "contributor", "commenter"),
			"impact":               judgment("Effect of the contribution on the project or its users."),
			"technical_quality":    judgment("Correctness, design and craftsmanship."),
			"collaboration":        judgment("How the actor worked with others in the thread."),
			"alignment_with_goals": judgment("Fit with the role expectations."),
			"referenced_urls": {
				Type:        "array",
				Items:       &jsonschema.Schema{Type: "string"},
				Description: "Links on the platform host that support the judgment.",
			},
		},
	)
}

func summarySchema() *jsonschema.Schema {
	standout := object([]string{"url", "title", "sentiment", "reason"}, map[string]*jsonschema.Schema{
		"url":       str("URL of an analyzed contribution."),
		"title":     str("Title of the contribution."),
		"sentiment": enum("Whether this stands out for good or bad reasons.", "positive", "concerning"),
		"reason":    str("Why it stands out."),
	})
	return object(
		[]string{"role_summary", "metrics_summary", "performance_narrative", "strengths", "improvement_areas", "standouts"},
		map[string]*jsonschema.Schema{
			"role_summary":          str("How the actor's work maps to the role description."),
			"metrics_summary":       str("Plain-language reading of the contribution counts."),
			"performance_narrative": str("Overall narrative of the period."),
			"strengths": {
				Type: "array", Items: str(""), MinItems: intp(2), MaxItems: intp(2),
				Description: "Exactly two strengths.",
			},
			"improvement_areas": {
				Type: "array", Items: str(""), MinItems: intp(2), MaxItems: intp(2),
				Description: "Exactly two improvement areas.",
			},
			"standouts": {
				Type: "array", Items: standout, MinItems: intp(1), MaxItems: intp(3),
				Description: "One to three standout contributions. Include at least one positive and one concerning item when both kinds exist.",
			},
		},
	)
}

func newStructuredOutput(name, desc string, schema *jsonschema.Schema) (*structuredOutput, error) {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s schema: %w", name, err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", name, err)
	}
	return &structuredOutput{
		tool:     llm.ToolSchema{Name: name, Description: desc, InputSchema: raw},
		resolved: resolved,
	}, nil
}

func mustStructuredOutput(name, desc string, schema *jsonschema.Schema) *structuredOutput {
	so, err := newStructuredOutput(name, desc, schema)
	if err != nil {
		panic(err)
	}
	return so
}

var (
	assessmentOutput = mustStructuredOutput(assessmentTool,
		"Record the structured assessment of one contribution.", assessmentSchema())
	summaryOutput = mustStructuredOutput(summaryTool,
		"Record the executive summary for the review period.", summarySchema())
)

// decode validates raw against the schema and unmarshals it into v.
func (s *structuredOutput) decode(stage string, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return perrors.NewValidationError(stage, "no structured output returned")
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return perrors.NewValidationError(stage, "output is not JSON: "+err.Error())
	}
	if err := s.resolved.Validate(instance); err != nil {
		return perrors.NewValidationError(stage, err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return perrors.NewValidationError(stage, "decode: "+err.Error())
	}
	return nil
}
