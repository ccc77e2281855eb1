package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/intentflow/schema"
)

func bookingProperties() []schema.Property {
	return []schema.Property{
		prop("sliceName", schema.TypeString),
		prop("serviceArea", schema.TypeObject),
		prop("startTime", schema.TypeString),
		prop("endTime", schema.TypeString),
		prop("qosProfile", schema.TypeString),
		{Name: "bandwidthMbps", Type: schema.TypeInteger, Example: 100, HasExample: true},
		prop("maxDevices", schema.TypeInteger),
		prop("preemptible", schema.TypeBoolean),
		prop("deviceIds", schema.TypeArray),
	}
}

func TestExtract_DirectNameMatch(t *testing.T) {
	res := Extract("I need sliceId for my service", []schema.Property{prop("sliceId", schema.TypeString)})

	v, ok := res.Get("sliceId")
	require.True(t, ok)
	assert.Equal(t, Detected(DetectedString), v)
	assert.Equal(t, RuleDirectName, res.Matches["sliceId"])
}

func TestExtract_CategoryBeatsNumericPattern(t *testing.T) {
	res := Extract("bandwidth 250 mbps", []schema.Property{
		{Name: "bandwidthMbps", Type: schema.TypeInteger, Example: 100, HasExample: true},
	})

	v, ok := res.Get("bandwidthMbps")
	require.True(t, ok)
	assert.Equal(t, NeedsParsing(SentinelNeedsParsing), v)
	assert.Equal(t, RuleQoS, res.Matches["bandwidthMbps"])
}

func TestExtract_CategoryWithoutTextFallsThrough(t *testing.T) {
	res := Extract(`duration label 'short'`, []schema.Property{prop("durationLabel", schema.TypeString)})

	v, ok := res.Get("durationLabel")
	require.True(t, ok)
	assert.Equal(t, Extracted("short"), v)
	assert.Equal(t, RuleQuotedString, res.Matches["durationLabel"])
}

func TestExtract_UnmatchedPropertiesAreAbsent(t *testing.T) {
	res := Extract("hello there", bookingProperties())

	assert.Equal(t, 0, res.Len())
	assert.False(t, res.Has("preemptible"))
	assert.Empty(t, res.Names())
}

func TestExtract_BookingRequest(t *testing.T) {
	text := `Book slice name "stadium-gold" for the final on 2025-07-13 ` +
		`within a 2 km radius, max devices 500 and bandwidth 300 Mbps`
	res := Extract(text, bookingProperties())

	assert.Equal(t, map[string]string{
		"sliceName":     RuleQuotedString,
		"serviceArea":   RuleLocation,
		"startTime":     RuleTimeWindow,
		"endTime":       RuleTimeWindow,
		"qosProfile":    RuleQoS,
		"bandwidthMbps": RuleQoS,
		"maxDevices":    RuleNumericLiteral,
	}, res.Matches)

	assert.Equal(t, Extracted("stadium-gold"), res.Values["sliceName"])
	assert.Equal(t, Extracted(int64(500)), res.Values["maxDevices"])
	assert.Equal(t, []string{"bandwidthMbps", "endTime", "qosProfile", "serviceArea", "startTime"}, res.Sentinels())

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sliceName": "stadium-gold",
		"serviceArea": "detected_needs_parsing",
		"startTime": "detected_needs_parsing",
		"endTime": "detected_needs_parsing",
		"qosProfile": "detected_needs_parsing",
		"bandwidthMbps": "detected_needs_parsing",
		"maxDevices": 500
	}`, string(data))
}

func TestExtractor_CustomRules(t *testing.T) {
	e := New(DirectNameRule{})
	assert.Equal(t, []string{RuleDirectName}, e.Rules())

	res := e.Extract("bandwidth 250 mbps", []schema.Property{prop("bandwidthMbps", schema.TypeInteger)})
	assert.Equal(t, 0, res.Len())

	assert.Equal(t, []string{
		RuleDirectName, RuleTimeWindow, RuleLocation, RuleQoS, RuleQuotedString, RuleNumericLiteral,
	}, New().Rules())
}

func TestProperty_ExtractionIsDeterministic(t *testing.T) {
	words := []string{
		"slice", "name", "sliceName", "bandwidth", "250", "mbps", "from", "2024-01-02",
		"radius", `"gold"`, "max", "devices", "12", "latency", "area", "the", "for",
	}
	props := bookingProperties()

	rapid.Check(t, func(rt *rapid.T) {
		picked := rapid.SliceOfN(rapid.SampledFrom(words), 0, 20).Draw(rt, "words")
		text := strings.Join(picked, " ")

		first := Extract(text, props)
		second := Extract(text, props)
		require.Equal(rt, first.Values, second.Values)
		require.Equal(rt, first.Matches, second.Matches)

		// every value comes from a declared property and names its rule
		require.Equal(rt, len(first.Values), len(first.Matches))
		for name := range first.Values {
			found := false
			for _, p := range props {
				if p.Name == name {
					found = true
					break
				}
			}
			require.True(rt, found, name)
			require.NotEmpty(rt, first.Matches[name])
		}

		// a property's outcome does not depend on the other properties
		for _, p := range props {
			alone := Extract(text, []schema.Property{p})
			v, ok := first.Get(p.Name)
			w, ok2 := alone.Get(p.Name)
			require.Equal(rt, ok, ok2)
			require.Equal(rt, v, w)
		}
	})
}
