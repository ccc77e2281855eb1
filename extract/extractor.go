package extract

import (
	"encoding/json"
	"sort"

	"github.com/BaSui01/intentflow/schema"
)

// Result maps property names to extracted values. A property that no
// rule matched is absent.
type Result struct {
	Values map[string]Value
	// Matches records which rule produced each value.
	Matches map[string]string
}

func newResult() *Result {
	return &Result{Values: make(map[string]Value), Matches: make(map[string]string)}
}

// Get returns the value for name.
func (r *Result) Get(name string) (Value, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Has reports whether name was found.
func (r *Result) Has(name string) bool {
	_, ok := r.Values[name]
	return ok
}

// Len returns the number of found properties.
func (r *Result) Len() int { return len(r.Values) }

// Names returns found property names, sorted.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Values))
	for n := range r.Values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sentinels returns the names whose value still needs parsing, sorted.
func (r *Result) Sentinels() []string {
	var names []string
	for n, v := range r.Values {
		if v.IsSentinel() {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// MarshalJSON emits the name → raw value mapping.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values)
}

// Extractor runs an ordered rule list over each property independently.
type Extractor struct {
	rules []Rule
}

// New creates an Extractor. With no rules it uses DefaultRules.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

// Rules returns the rule names in priority order.
func (e *Extractor) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Extract applies the rules to every property; the first matching rule
// wins for that property.
func (e *Extractor) Extract(text string, properties []schema.Property) *Result {
	res := newResult()
	for _, p := range properties {
		in := NewInput(text, p)
		for _, rule := range e.rules {
			if v, ok := rule.Apply(in); ok {
				res.Values[p.Name] = v
				res.Matches[p.Name] = rule.Name()
				break
			}
		}
	}
	return res
}

var defaultExtractor = New()

// Extract runs the default rules.
func Extract(text string, properties []schema.Property) *Result {
	return defaultExtractor.Extract(text, properties)
}
