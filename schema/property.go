package schema

import (
	"gopkg.in/yaml.v3"
)

// Property types recognised by extraction and synthesis. TypeAbsent is
// used when a property declares no type.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeAbsent  = ""
)

// Property is one field of a request body schema. Example and Default are
// only meaningful when the matching Has flag is set, so that an explicit
// null example is distinguishable from a missing one.
type Property struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Format      string `json:"format,omitempty"`
	Example     any    `json:"example,omitempty"`
	HasExample  bool   `json:"-"`
	Default     any    `json:"default,omitempty"`
	HasDefault  bool   `json:"-"`
	Enum        []any  `json:"enum,omitempty"`
}

// RequestSchema is the request body contract of one operation.
type RequestSchema struct {
	Operation  OperationRef `json:"operation"`
	Properties []Property   `json:"properties"`
	Required   []string     `json:"required"`
}

// Names returns property names in document order.
func (s *RequestSchema) Names() []string {
	names := make([]string, len(s.Properties))
	for i, p := range s.Properties {
		names[i] = p.Name
	}
	return names
}

// Property looks up a property by name.
func (s *RequestSchema) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// IsRequired reports whether name is in the required list.
func (s *RequestSchema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

func newRequestSchema(op OperationRef, node *yaml.Node) (*RequestSchema, error) {
	rs := &RequestSchema{Operation: op, Properties: []Property{}, Required: []string{}}

	if props := mappingValue(node, "properties"); props != nil && props.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(props.Content); i += 2 {
			p, err := decodeProperty(props.Content[i].Value, deref(props.Content[i+1]))
			if err != nil {
				return nil, err
			}
			rs.Properties = append(rs.Properties, p)
		}
	}

	if req := mappingValue(node, "required"); req != nil && req.Kind == yaml.SequenceNode {
		seen := make(map[string]bool, len(req.Content))
		for _, item := range req.Content {
			item = deref(item)
			if item.Kind != yaml.ScalarNode || seen[item.Value] {
				continue
			}
			seen[item.Value] = true
			rs.Required = append(rs.Required, item.Value)
		}
	}
	return rs, nil
}

func decodeProperty(name string, node *yaml.Node) (Property, error) {
	p := Property{Name: name}
	if node == nil || node.Kind != yaml.MappingNode {
		return p, nil
	}

	p.Type = propertyType(mappingValue(node, "type"))
	if d := mappingValue(node, "description"); d != nil && d.Kind == yaml.ScalarNode {
		p.Description = d.Value
	}
	if f := mappingValue(node, "format"); f != nil && f.Kind == yaml.ScalarNode {
		p.Format = f.Value
	}
	if ex := mappingValue(node, "example"); ex != nil {
		v, err := decodeValue(ex)
		if err != nil {
			return p, err
		}
		p.Example, p.HasExample = v, true
	}
	if def := mappingValue(node, "default"); def != nil {
		v, err := decodeValue(def)
		if err != nil {
			return p, err
		}
		p.Default, p.HasDefault = v, true
	}
	if enum := mappingValue(node, "enum"); enum != nil && enum.Kind == yaml.SequenceNode {
		for _, item := range enum.Content {
			v, err := decodeValue(item)
			if err != nil {
				return p, err
			}
			p.Enum = append(p.Enum, v)
		}
	}
	return p, nil
}

// propertyType reads "type", taking the first non-null entry of an
// OpenAPI 3.1 type list.
func propertyType(n *yaml.Node) string {
	if n == nil {
		return TypeAbsent
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item = deref(item); item.Kind == yaml.ScalarNode && item.Value != "null" {
				return item.Value
			}
		}
	}
	return TypeAbsent
}

// decodeValue converts a node into plain Go values (map[string]any,
// []any, string, int, float64, bool, nil).
func decodeValue(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeValue(v), nil
}

// normalizeValue rewrites map[any]any (non-string keys) into
// map[string]any so every decoded value is JSON-encodable.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeValue(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[stringKey(k)] = normalizeValue(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalizeValue(item)
		}
		return t
	default:
		return v
	}
}

func stringKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	b, err := yaml.Marshal(k)
	if err != nil {
		return ""
	}
	return string(trimNewline(b))
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
