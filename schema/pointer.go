package schema

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// splitPointer turns a JSON pointer fragment into unescaped reference tokens.
// "" and "/" both address the document root.
func splitPointer(fragment string) ([]string, error) {
	if decoded, err := url.PathUnescape(fragment); err == nil {
		fragment = decoded
	}
	if fragment == "" || fragment == "/" {
		return nil, nil
	}
	if !strings.HasPrefix(fragment, "/") {
		return nil, fmt.Errorf("pointer %q must start with '/'", fragment)
	}
	raw := strings.Split(fragment[1:], "/")
	tokens := make([]string, len(raw))
	for i, tok := range raw {
		// ~1 first, then ~0 (RFC 6901 §4)
		tok = strings.ReplaceAll(tok, "~1", "/")
		tokens[i] = strings.ReplaceAll(tok, "~0", "~")
	}
	return tokens, nil
}

// escapeToken is the inverse of the token unescaping in splitPointer.
func escapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}

func joinPointer(base, tok string) string {
	return base + "/" + escapeToken(tok)
}

// lookupPointer walks node along the fragment's tokens.
func lookupPointer(node *yaml.Node, fragment string) (*yaml.Node, error) {
	tokens, err := splitPointer(fragment)
	if err != nil {
		return nil, err
	}
	cur := unwrapDocument(node)
	for i, tok := range tokens {
		cur = deref(cur)
		switch cur.Kind {
		case yaml.MappingNode:
			next := mappingValue(cur, tok)
			if next == nil {
				return nil, fmt.Errorf("key %q not found at /%s", tok, strings.Join(tokens[:i], "/"))
			}
			cur = next
		case yaml.SequenceNode:
			idx, convErr := strconv.Atoi(tok)
			if convErr != nil || idx < 0 || idx >= len(cur.Content) {
				return nil, fmt.Errorf("index %q out of range at /%s", tok, strings.Join(tokens[:i], "/"))
			}
			cur = cur.Content[idx]
		default:
			return nil, fmt.Errorf("cannot descend into scalar at /%s", strings.Join(tokens[:i], "/"))
		}
	}
	return deref(cur), nil
}

func unwrapDocument(n *yaml.Node) *yaml.Node {
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// mappingValue returns the value for key in a mapping node, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	m = deref(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return deref(m.Content[i+1])
		}
	}
	return nil
}

// mappingValueFold is mappingValue with case-insensitive key matching.
// An exact match wins over a folded one.
func mappingValueFold(m *yaml.Node, key string) (string, *yaml.Node) {
	if v := mappingValue(m, key); v != nil {
		return key, v
	}
	m = deref(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return "", nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if strings.EqualFold(m.Content[i].Value, key) {
			return m.Content[i].Value, deref(m.Content[i+1])
		}
	}
	return "", nil
}
