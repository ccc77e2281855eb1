package schema

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// JSONMediaType is the only request body media type the synthesizer reads.
const JSONMediaType = "application/json"

// httpMethods are the operation keys of an OpenAPI path item.
var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// OperationRef identifies an operation. Method is always lower case.
type OperationRef struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// NewOperationRef normalises method to lower case.
func NewOperationRef(path, method string) OperationRef {
	return OperationRef{Path: path, Method: strings.ToLower(strings.TrimSpace(method))}
}

func (o OperationRef) String() string {
	return strings.ToUpper(o.Method) + " " + o.Path
}

// Operation summarises an operation that has a JSON request body.
type Operation struct {
	OperationRef
	OperationID string   `json:"operation_id,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Properties  []string `json:"properties"`
	Required    []string `json:"required"`
}

// Document is a fully dereferenced schema document. It is immutable after
// Load and safe for concurrent use.
type Document struct {
	source string
	root   *yaml.Node
}

// Source returns the location the document was loaded from.
func (d *Document) Source() string { return d.source }

// Title returns info.title, if declared.
func (d *Document) Title() string {
	if t := mappingValue(mappingValue(d.root, "info"), "title"); t != nil {
		return t.Value
	}
	return ""
}

// Version returns info.version, if declared.
func (d *Document) Version() string {
	if v := mappingValue(mappingValue(d.root, "info"), "version"); v != nil {
		return v.Value
	}
	return ""
}

// Lookup returns a copy of the node at a JSON pointer ("" is the root).
func (d *Document) Lookup(pointer string) (*yaml.Node, bool) {
	n, err := lookupPointer(d.root, pointer)
	if err != nil || n == nil {
		return nil, false
	}
	return deepCopy(n), true
}

// Decode converts the whole document into plain Go values.
func (d *Document) Decode() (map[string]any, error) {
	v, err := decodeValue(d.root)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}

// Bytes encodes the resolved document as YAML, in document order.
func (d *Document) Bytes() ([]byte, error) {
	return yaml.Marshal(d.root)
}

// RequestSchema extracts the JSON request body schema of (path, method)
// following paths → path → method → requestBody → content →
// application/json → schema. Method matching is case-insensitive.
func (d *Document) RequestSchema(path, method string) (*RequestSchema, error) {
	op := NewOperationRef(path, method)
	notFound := func(segment string) error {
		return &OperationNotFoundError{Path: op.Path, Method: op.Method, Segment: segment}
	}

	paths := mappingValue(d.root, "paths")
	if paths == nil {
		return nil, notFound("paths")
	}
	item := mappingValue(paths, op.Path)
	if item == nil {
		return nil, notFound(op.Path)
	}
	_, operation := mappingValueFold(item, op.Method)
	if operation == nil || !httpMethods[op.Method] {
		return nil, notFound(op.Method)
	}
	body := mappingValue(operation, "requestBody")
	if body == nil {
		return nil, notFound("requestBody")
	}
	content := mappingValue(body, "content")
	if content == nil {
		return nil, notFound("content")
	}
	media := mappingValue(content, JSONMediaType)
	if media == nil {
		return nil, notFound(JSONMediaType)
	}
	schemaNode := mappingValue(media, "schema")
	if schemaNode == nil {
		return nil, notFound("schema")
	}
	return newRequestSchema(op, schemaNode)
}

// Operations lists every operation with a JSON request body schema, in
// document order.
func (d *Document) Operations() []Operation {
	var ops []Operation
	paths := mappingValue(d.root, "paths")
	if paths == nil || paths.Kind != yaml.MappingNode {
		return ops
	}
	for i := 0; i+1 < len(paths.Content); i += 2 {
		path := paths.Content[i].Value
		item := deref(paths.Content[i+1])
		if item == nil || item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			method := strings.ToLower(item.Content[j].Value)
			if !httpMethods[method] {
				continue
			}
			rs, err := d.RequestSchema(path, method)
			if err != nil {
				continue
			}
			opNode := deref(item.Content[j+1])
			op := Operation{
				OperationRef: rs.Operation,
				Properties:   rs.Names(),
				Required:     rs.Required,
			}
			if v := mappingValue(opNode, "operationId"); v != nil {
				op.OperationID = v.Value
			}
			if v := mappingValue(opNode, "summary"); v != nil {
				op.Summary = v.Value
			}
			ops = append(ops, op)
		}
	}
	return ops
}
