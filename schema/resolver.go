package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const refKey = "$ref"

// ctxCheckEvery is how many expanded nodes pass between context checks.
const ctxCheckEvery = 4096

// resolver replaces $ref nodes with deep copies of their targets. It walks
// the source tree without modifying it. External documents are read once
// per resolution and kept in docs by location.
type resolver struct {
	ctx    context.Context
	loader *Loader
	docs   map[string]*yaml.Node
	// refs currently being expanded, keyed by "location#pointer"
	active   map[string]bool
	memo     map[string]*yaml.Node
	refCount int
	// anchors currently being expanded through an alias
	aliases  map[*yaml.Node]bool
	nodes    int
	maxNodes int
	checked  int
}

func newResolver(ctx context.Context, loader *Loader, location string, root *yaml.Node) *resolver {
	return &resolver{
		ctx:      ctx,
		loader:   loader,
		docs:     map[string]*yaml.Node{location: root},
		active:   make(map[string]bool),
		memo:     make(map[string]*yaml.Node),
		aliases:  make(map[*yaml.Node]bool),
		maxNodes: loader.maxNodes,
	}
}

// resolve returns a $ref-free copy of n. loc is the location of the
// document n belongs to; ptr is n's JSON pointer within it.
func (r *resolver) resolve(n *yaml.Node, loc, ptr string) (*yaml.Node, error) {
	n = unwrapDocument(n)
	if n == nil {
		return nil, nil
	}
	if n.Kind == yaml.AliasNode {
		return r.resolveAlias(n, loc, ptr)
	}
	if err := r.charge(1, loc, ptr); err != nil {
		return nil, err
	}

	switch n.Kind {
	case yaml.MappingNode:
		if ref, ok := refValue(n); ok {
			return r.resolveRef(ref, loc, ptr)
		}
		if err := r.charge(len(n.Content)/2, loc, ptr); err != nil {
			return nil, err
		}
		out := shallowCopy(n)
		out.Content = make([]*yaml.Node, 0, len(n.Content))
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			val, err := r.resolve(n.Content[i+1], loc, joinPointer(ptr, key.Value))
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, shallowCopy(key), val)
		}
		return out, nil

	case yaml.SequenceNode:
		out := shallowCopy(n)
		out.Content = make([]*yaml.Node, 0, len(n.Content))
		for i, item := range n.Content {
			val, err := r.resolve(item, loc, fmt.Sprintf("%s/%d", ptr, i))
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, val)
		}
		return out, nil

	default:
		return shallowCopy(n), nil
	}
}

// resolveAlias expands an alias into a copy of its anchored node. An alias
// reached again while its anchor is being expanded is a cycle.
func (r *resolver) resolveAlias(n *yaml.Node, loc, ptr string) (*yaml.Node, error) {
	target := n.Alias
	if target == nil {
		return nil, &SchemaLoadError{Source: loc, Cause: fmt.Errorf("alias *%s at %s has no anchor", n.Value, displayPointer(ptr))}
	}
	if r.aliases[target] {
		return nil, &SchemaLoadError{Source: loc, Cause: fmt.Errorf("%w *%s at %s", ErrRecursiveAlias, n.Value, displayPointer(ptr))}
	}
	r.aliases[target] = true
	defer delete(r.aliases, target)
	return r.resolve(target, loc, ptr)
}

// charge counts n output nodes against the expansion budget and checks
// the context now and then.
func (r *resolver) charge(n int, loc, ptr string) error {
	r.nodes += n
	if r.maxNodes > 0 && r.nodes > r.maxNodes {
		return &SchemaLoadError{Source: loc, Cause: fmt.Errorf("%w: more than %d at %s", ErrTooManyNodes, r.maxNodes, displayPointer(ptr))}
	}
	if r.nodes-r.checked >= ctxCheckEvery {
		r.checked = r.nodes
		if err := r.ctx.Err(); err != nil {
			return &SchemaLoadError{Source: loc, Cause: err}
		}
	}
	return nil
}

func (r *resolver) resolveRef(ref, loc, ptr string) (*yaml.Node, error) {
	r.refCount++
	fail := func(reason string, cause error) error {
		return &SchemaResolutionError{Source: loc, Ref: ref, Pointer: ptr, Reason: reason, Cause: cause}
	}

	if err := r.ctx.Err(); err != nil {
		return nil, fail("cancelled", err)
	}

	file, fragment, _ := strings.Cut(ref, "#")
	targetLoc := loc
	if file != "" {
		joined, err := joinLocation(loc, file)
		if err != nil {
			return nil, fail("invalid external reference", err)
		}
		targetLoc = joined
	}

	key := targetLoc + "#" + fragment
	if cached, ok := r.memo[key]; ok {
		if err := r.charge(countNodes(cached), loc, ptr); err != nil {
			return nil, err
		}
		return deepCopy(cached), nil
	}
	if r.active[key] {
		return nil, fail("circular reference", nil)
	}

	root, err := r.document(targetLoc)
	if err != nil {
		return nil, fail("external document unavailable", err)
	}
	target, err := lookupPointer(root, fragment)
	if err != nil {
		return nil, fail("target not found", err)
	}

	r.active[key] = true
	resolved, err := r.resolve(target, targetLoc, strings.TrimSuffix(fragment, "/"))
	delete(r.active, key)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, fail("target not found", errors.New("empty target"))
	}

	r.memo[key] = resolved
	return deepCopy(resolved), nil
}

func (r *resolver) document(loc string) (*yaml.Node, error) {
	if root, ok := r.docs[loc]; ok {
		return root, nil
	}
	data, err := r.loader.read(r.ctx, loc)
	if err != nil {
		return nil, err
	}
	root, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	r.docs[loc] = root
	return root, nil
}

// refValue reports the $ref string of a mapping node, if any.
func refValue(n *yaml.Node) (string, bool) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], deref(n.Content[i+1])
		if k.Value == refKey && v != nil && v.Kind == yaml.ScalarNode {
			return v.Value, true
		}
	}
	return "", false
}

// shallowCopy also drops the anchor: resolved output holds no aliases.
func shallowCopy(n *yaml.Node) *yaml.Node {
	c := *n
	c.Anchor = ""
	return &c
}

func countNodes(n *yaml.Node) int {
	if n == nil {
		return 0
	}
	total := 1
	for _, child := range n.Content {
		total += countNodes(child)
	}
	return total
}

func deepCopy(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = deepCopy(child)
		}
	}
	return &c
}
