package synth

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/intentflow/extract"
	"github.com/BaSui01/intentflow/schema"
)

func requestSchema(required []string, props ...schema.Property) *schema.RequestSchema {
	return &schema.RequestSchema{
		Operation:  schema.NewOperationRef("/sessions", "post"),
		Properties: props,
		Required:   required,
	}
}

func TestSynthesize_ReadyWhenRequiredFound(t *testing.T) {
	rs := requestSchema([]string{"sliceId"}, schema.Property{Name: "sliceId", Type: schema.TypeString})
	res := Synthesize(rs, extract.Extract("I need sliceId for my service", rs.Properties))

	assert.True(t, res.Ready)
	assert.Empty(t, res.MissingRequired)
	v, _ := res.SuggestedPayload.Get("sliceId")
	assert.Equal(t, "detected_string_value", v)
	assert.Equal(t, SourceExtracted, res.PayloadSources["sliceId"])
}

func TestSynthesize_MissingRequiredGetsPlaceholder(t *testing.T) {
	rs := requestSchema([]string{"startTime"}, schema.Property{
		Name: "startTime", Type: schema.TypeString, Description: "Start of the booking window",
	})
	res := Synthesize(rs, extract.Extract("a gold slice please", rs.Properties))

	assert.False(t, res.Ready)
	assert.Equal(t, []string{"startTime"}, res.MissingRequired)
	v, _ := res.SuggestedPayload.Get("startTime")
	assert.Equal(t, "<Start of the booking window>", v)
	assert.Equal(t, SourcePlaceholder, res.PayloadSources["startTime"])

	rs.Properties[0].Description = ""
	res = Synthesize(rs, extract.Extract("a gold slice please", rs.Properties))
	v, _ = res.SuggestedPayload.Get("startTime")
	assert.Equal(t, "<string_value>", v)
}

func TestSynthesize_ExampleBackfillsSentinel(t *testing.T) {
	bw := schema.Property{Name: "bandwidthMbps", Type: schema.TypeInteger, Example: 100, HasExample: true}
	rs := requestSchema([]string{"bandwidthMbps"}, bw)

	res := Synthesize(rs, extract.Extract("bandwidth 250 mbps", rs.Properties))
	assert.True(t, res.Ready)
	v, ok := res.SuggestedPayload.Get("bandwidthMbps")
	require.True(t, ok)
	assert.Equal(t, extract.SentinelNeedsParsing, v)

	res = Synthesize(rs, extract.Extract("nothing relevant", rs.Properties))
	assert.False(t, res.Ready)
	v, _ = res.SuggestedPayload.Get("bandwidthMbps")
	assert.Equal(t, 100, v)
	assert.Equal(t, SourceExample, res.PayloadSources["bandwidthMbps"])
}

func TestPlaceholder_PerType(t *testing.T) {
	tests := []struct {
		typ  string
		want any
	}{
		{schema.TypeString, "<string_value>"},
		{schema.TypeInteger, int64(0)},
		{schema.TypeNumber, float64(0)},
		{schema.TypeBoolean, false},
		{schema.TypeArray, []any{}},
		{schema.TypeObject, map[string]any{}},
		{schema.TypeAbsent, nil},
		{"null", nil},
	}
	for _, tt := range tests {
		t.Run("type_"+tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, Placeholder(schema.Property{Name: "p", Type: tt.typ}))
		})
	}
}

func TestPlaceholder_StringDescription(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{"described", "Human readable slice name", "<Human readable slice name>"},
		{"empty description falls back", "", "<string_value>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := schema.Property{Name: "sliceName", Type: schema.TypeString, Description: tt.description}
			assert.Equal(t, tt.want, Placeholder(p))
		})
	}
}

func TestSynthesize_ValuePrecedence(t *testing.T) {
	rs := requestSchema(nil,
		schema.Property{Name: "both", Type: schema.TypeString, Example: "ex", HasExample: true, Default: "def", HasDefault: true},
		schema.Property{Name: "defaultOnly", Type: schema.TypeString, Default: "def", HasDefault: true},
		schema.Property{Name: "nullExample", Type: schema.TypeInteger, Example: nil, HasExample: true},
		schema.Property{Name: "falseDefault", Type: schema.TypeBoolean, Default: false, HasDefault: true},
	)
	found := &extract.Result{
		Values:  map[string]extract.Value{"defaultOnly": extract.Extracted("from text")},
		Matches: map[string]string{"defaultOnly": extract.RuleQuotedString},
	}
	res := Synthesize(rs, found)

	assert.True(t, res.Ready)
	assert.Equal(t, map[string]any{
		"both":         "ex",
		"defaultOnly":  "from text",
		"nullExample":  nil,
		"falseDefault": false,
	}, res.SuggestedPayload.Map())
	assert.Equal(t, map[string]Source{
		"both":         SourceExample,
		"defaultOnly":  SourceExtracted,
		"nullExample":  SourceExample,
		"falseDefault": SourceDefault,
	}, res.PayloadSources)
}

func TestSynthesize_RequiredOrderAndDuplicates(t *testing.T) {
	rs := requestSchema([]string{"c", "a", "c", "undeclared"},
		schema.Property{Name: "a", Type: schema.TypeString},
		schema.Property{Name: "b", Type: schema.TypeString},
		schema.Property{Name: "c", Type: schema.TypeString},
	)
	res := Synthesize(rs, nil)

	assert.Equal(t, []string{"c", "a", "undeclared"}, res.MissingRequired)
	assert.Equal(t, []string{"c", "a", "c", "undeclared"}, res.AllRequiredFields)
	assert.Equal(t, []string{"a", "b", "c"}, res.SchemaProperties)
	assert.Equal(t, []string{"a", "b", "c"}, res.SuggestedPayload.Keys())
	assert.NotNil(t, res.FoundParameters)
}

func TestSynthesize_BookingDocument(t *testing.T) {
	doc, err := schema.NewLoader().Load(context.Background(), "../schema/testdata/NetworkSliceBooking.yaml")
	require.NoError(t, err)
	rs, err := doc.RequestSchema("/sessions", "post")
	require.NoError(t, err)

	text := `Book slice name "stadium-gold" within a 2 km radius`
	res := Synthesize(rs, extract.Extract(text, rs.Properties))

	assert.False(t, res.Ready)
	assert.Equal(t, []string{"startTime", "endTime"}, res.MissingRequired)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded struct {
		SuggestedPayload json.RawMessage `json:"suggested_payload"`
		Ready            bool            `json:"ready"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.JSONEq(t, `{
		"sliceName": "stadium-gold",
		"serviceArea": "detected_needs_parsing",
		"startTime": "<Start of the booking window (RFC 3339)>",
		"endTime": "<string_value>",
		"qosProfile": "QOS_M",
		"bandwidthMbps": 100,
		"maxDevices": 0,
		"preemptible": false,
		"deviceIds": [],
		"sinkUrl": "<Callback URL for session notifications>"
	}`, string(decoded.SuggestedPayload))
	raw := string(decoded.SuggestedPayload)
	assert.Less(t, strings.Index(raw, `"sliceName"`), strings.Index(raw, `"serviceArea"`))
	assert.Less(t, strings.Index(raw, `"deviceIds"`), strings.Index(raw, `"sinkUrl"`))
}

func TestPayload_MarshalKeepsOrder(t *testing.T) {
	p := NewPayload()
	p.Set("z", 1)
	p.Set("a", []any{})
	p.Set("m", nil)
	p.Set("z", 2)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"z":2,"a":[],"m":null}`, string(data))
	assert.Equal(t, 3, p.Len())

	var nilPayload *Payload
	data, err = nilPayload.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
