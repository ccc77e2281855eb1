package synth

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/intentflow/extract"
	"github.com/BaSui01/intentflow/schema"
)

var propertyTypes = []string{
	schema.TypeString, schema.TypeInteger, schema.TypeNumber,
	schema.TypeBoolean, schema.TypeArray, schema.TypeObject, schema.TypeAbsent,
}

// buildCase derives a schema and an extraction result from generated
// selectors: bit i of requiredMask marks property i required, bit i of
// foundMask marks it found.
func buildCase(typeIdx []int, requiredMask, foundMask uint16) (*schema.RequestSchema, *extract.Result) {
	rs := &schema.RequestSchema{Operation: schema.NewOperationRef("/p", "post")}
	found := &extract.Result{Values: map[string]extract.Value{}, Matches: map[string]string{}}
	for i, ti := range typeIdx {
		name := fmt.Sprintf("p%d", i)
		rs.Properties = append(rs.Properties, schema.Property{Name: name, Type: propertyTypes[ti%len(propertyTypes)]})
		if requiredMask&(1<<uint(i)) != 0 {
			rs.Required = append(rs.Required, name)
		}
		if foundMask&(1<<uint(i)) != 0 {
			found.Values[name] = extract.Detected(extract.DetectedValue)
			found.Matches[name] = extract.RuleDirectName
		}
	}
	return rs, found
}

func TestProperty_ReadinessMatchesMissingRequired(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("ready iff nothing required is missing, and missing is a subset of required", prop.ForAll(
		func(typeIdx []int, requiredMask, foundMask uint16) bool {
			rs, found := buildCase(typeIdx, requiredMask, foundMask)
			res := Synthesize(rs, found)

			if res.Ready != (len(res.MissingRequired) == 0) {
				return false
			}
			required := make(map[string]bool, len(rs.Required))
			for _, r := range rs.Required {
				required[r] = true
			}
			for _, m := range res.MissingRequired {
				if !required[m] || found.Has(m) {
					return false
				}
			}
			for _, r := range rs.Required {
				if !found.Has(r) && !contains(res.MissingRequired, r) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, len(propertyTypes)-1)),
		gen.UInt16(),
		gen.UInt16(),
	))

	properties.Property("payload covers every property in schema order with type-correct placeholders", prop.ForAll(
		func(typeIdx []int, foundMask uint16) bool {
			rs, found := buildCase(typeIdx, 0, foundMask)
			res := Synthesize(rs, found)

			keys := res.SuggestedPayload.Keys()
			if len(keys) != len(rs.Properties) {
				return false
			}
			for i, p := range rs.Properties {
				if keys[i] != p.Name || res.SchemaProperties[i] != p.Name {
					return false
				}
				v, _ := res.SuggestedPayload.Get(p.Name)
				if found.Has(p.Name) {
					if v != extract.DetectedValue {
						return false
					}
					continue
				}
				if fmt.Sprintf("%#v", v) != fmt.Sprintf("%#v", Placeholder(p)) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, len(propertyTypes)-1)),
		gen.UInt16(),
	))

	properties.TestingRun(t)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
