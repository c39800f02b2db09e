package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// PlanSchemaVersion identifies the revision of PlanSchema.
const PlanSchemaVersion = "leedz.actionplan/v1"

// Plan is the translator's decision for one request: either a conversational
// Response or one CRUD call.
type Plan struct {
	Actionable  bool
	Method      string
	Endpoint    string
	Data        json.RawMessage
	Description string
	Response    string

	// Extra holds fields the schema does not name. They are kept for logging
	// and never sent to the CRUD service.
	Extra map[string]json.RawMessage
}

var errPlanNotObject = errors.New("plan is not a JSON object")

// PlanSchema accepts exactly one of the two plan shapes.
var PlanSchema = &jsonschema.Schema{
	Description: "Leedz action plan " + PlanSchemaVersion,
	Type:        "object",
	Properties: map[string]*jsonschema.Schema{
		"actionable":  {Type: "boolean"},
		"method":      {Type: "string", Enum: []any{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}},
		"endpoint":    {Type: "string", Pattern: "^/", MinLength: jsonschema.Ptr(1)},
		"description": {Type: "string"},
		"response":    {Type: "string"},
	},
	Required: []string{"actionable"},
	OneOf: []*jsonschema.Schema{
		{
			Properties: map[string]*jsonschema.Schema{"actionable": {Const: jsonschema.Ptr[any](true)}},
			Required:   []string{"method", "endpoint"},
		},
		{
			Properties: map[string]*jsonschema.Schema{"actionable": {Const: jsonschema.Ptr[any](false)}},
			Required:   []string{"response"},
		},
	},
}

var resolvedPlanSchema = mustResolve(PlanSchema)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("schema.Resolve failed: %v", err))
	}
	return r
}

var knownPlanFields = map[string]bool{
	"actionable": true, "method": true, "endpoint": true,
	"data": true, "description": true, "response": true,
}

// ParsePlan validates raw against PlanSchema. Lower-case methods are
// accepted and normalised.
func ParsePlan(raw json.RawMessage) (*Plan, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, errPlanNotObject
	}
	if m, ok := doc["method"].(string); ok {
		doc["method"] = strings.ToUpper(strings.TrimSpace(m))
	}
	if err := resolvedPlanSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errPlanNotObject
	}

	p := &Plan{Actionable: doc["actionable"].(bool)}
	p.Method, _ = doc["method"].(string)
	p.Endpoint, _ = doc["endpoint"].(string)
	p.Description, _ = doc["description"].(string)
	p.Response, _ = doc["response"].(string)
	if data, ok := fields["data"]; ok && string(data) != "null" {
		p.Data = data
	}
	for k, v := range fields {
		if knownPlanFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	return p, nil
}
