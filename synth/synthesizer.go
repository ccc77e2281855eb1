package synth

import (
	"github.com/BaSui01/intentflow/extract"
	"github.com/BaSui01/intentflow/schema"
)

// Source says where a payload value came from.
type Source string

const (
	SourceExtracted   Source = "extracted"
	SourceExample     Source = "example"
	SourceDefault     Source = "default"
	SourcePlaceholder Source = "placeholder"
)

// Result is the outcome of one synthesis. Treat it as read-only.
type Result struct {
	Operation         schema.OperationRef `json:"operation"`
	FoundParameters   *extract.Result     `json:"found_parameters"`
	MissingRequired   []string            `json:"missing_required"`
	AllRequiredFields []string            `json:"all_required_fields"`
	SuggestedPayload  *Payload            `json:"suggested_payload"`
	Ready             bool                `json:"ready"`
	SchemaProperties  []string            `json:"schema_properties"`
	PayloadSources    map[string]Source   `json:"payload_sources"`
}

// Synthesize merges found values with the schema's examples, defaults and
// placeholders. found may be nil.
func Synthesize(rs *schema.RequestSchema, found *extract.Result) *Result {
	if found == nil {
		found = &extract.Result{Values: map[string]extract.Value{}, Matches: map[string]string{}}
	}

	res := &Result{
		Operation:         rs.Operation,
		FoundParameters:   found,
		MissingRequired:   []string{},
		AllRequiredFields: append([]string{}, rs.Required...),
		SuggestedPayload:  NewPayload(),
		SchemaProperties:  rs.Names(),
		PayloadSources:    make(map[string]Source, len(rs.Properties)),
	}

	seen := make(map[string]bool, len(rs.Required))
	for _, name := range rs.Required {
		if seen[name] {
			continue
		}
		seen[name] = true
		if !found.Has(name) {
			res.MissingRequired = append(res.MissingRequired, name)
		}
	}
	res.Ready = len(res.MissingRequired) == 0

	for _, p := range rs.Properties {
		v, src := resolveValue(p, found)
		res.SuggestedPayload.Set(p.Name, v)
		res.PayloadSources[p.Name] = src
	}
	return res
}

func resolveValue(p schema.Property, found *extract.Result) (any, Source) {
	if v, ok := found.Get(p.Name); ok {
		return v.Raw, SourceExtracted
	}
	if p.HasExample {
		return p.Example, SourceExample
	}
	if p.HasDefault {
		return p.Default, SourceDefault
	}
	return Placeholder(p), SourcePlaceholder
}

// Placeholder returns the type-directed stand-in for p.
func Placeholder(p schema.Property) any {
	switch p.Type {
	case schema.TypeString:
		if p.Description != "" {
			return "<" + p.Description + ">"
		}
		return "<string_value>"
	case schema.TypeInteger:
		return int64(0)
	case schema.TypeNumber:
		return float64(0)
	case schema.TypeBoolean:
		return false
	case schema.TypeArray:
		return []any{}
	case schema.TypeObject:
		return map[string]any{}
	default:
		return nil
	}
}
