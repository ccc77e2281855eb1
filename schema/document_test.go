package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/intentflow/types"
)

func TestDocument_RequestSchema(t *testing.T) {
	doc := loadFixture(t, sliceBooking)

	rs, err := doc.RequestSchema("/sessions", "POST")
	require.NoError(t, err)

	assert.Equal(t, NewOperationRef("/sessions", "post"), rs.Operation)
	assert.Equal(t, []string{
		"sliceName", "serviceArea", "startTime", "endTime", "qosProfile",
		"bandwidthMbps", "maxDevices", "preemptible", "deviceIds", "sinkUrl",
	}, rs.Names())
	assert.Equal(t, []string{"sliceName", "serviceArea", "startTime", "endTime"}, rs.Required)
	assert.True(t, rs.IsRequired("startTime"))
	assert.False(t, rs.IsRequired("qosProfile"))

	start, ok := rs.Property("startTime")
	require.True(t, ok)
	assert.Equal(t, TypeString, start.Type)
	assert.Equal(t, "date-time", start.Format)
	assert.Equal(t, "Start of the booking window (RFC 3339)", start.Description)
	assert.False(t, start.HasExample)
	assert.False(t, start.HasDefault)

	qos, _ := rs.Property("qosProfile")
	assert.True(t, qos.HasDefault)
	assert.Equal(t, "QOS_M", qos.Default)
	assert.Equal(t, []any{"QOS_S", "QOS_M", "QOS_L"}, qos.Enum)

	bw, _ := rs.Property("bandwidthMbps")
	assert.Equal(t, TypeInteger, bw.Type)
	assert.True(t, bw.HasExample)
	assert.Equal(t, 100, bw.Example)

	area, _ := rs.Property("serviceArea")
	assert.Equal(t, TypeObject, area.Type)
	assert.Equal(t, "Circular service area", area.Description)

	pre, _ := rs.Property("preemptible")
	assert.Equal(t, TypeBoolean, pre.Type)

	_, ok = rs.Property("unknown")
	assert.False(t, ok)
}

func TestDocument_RequestSchemaMethodIsCaseInsensitive(t *testing.T) {
	doc := loadFixture(t, sliceBooking)

	for _, m := range []string{"post", "POST", "Post", " post "} {
		rs, err := doc.RequestSchema("/sessions", m)
		require.NoError(t, err, m)
		assert.Equal(t, "post", rs.Operation.Method)
	}
}

func TestDocument_OperationNotFound(t *testing.T) {
	booking := loadFixture(t, sliceBooking)
	orders := loadFixture(t, "testdata/refs/main.yaml")

	tests := []struct {
		name    string
		doc     *Document
		path    string
		method  string
		segment string
	}{
		{"method only defined for post", orders, "/orders", "get", "get"},
		{"unknown path", booking, "/nope", "post", "/nope"},
		{"operation without body", booking, "/sessions", "GET", "requestBody"},
		{"path-level parameters are not a method", booking, "/sessions/{sessionId}", "parameters", "parameters"},
		{"undefined method on known path", booking, "/sessions/{sessionId}", "put", "put"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := tt.doc.RequestSchema(tt.path, tt.method)
			assert.Nil(t, rs)

			var nf *OperationNotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tt.segment, nf.Segment)
			assert.Equal(t, tt.path, nf.Path)
			assert.Equal(t, types.ErrOperationNotFound, nf.Code())
			assert.Contains(t, err.Error(), tt.segment)
		})
	}
}

func TestDocument_MissingBodySegments(t *testing.T) {
	data := []byte(`
paths:
  /no-content:
    post:
      requestBody: {description: nothing}
  /xml-only:
    post:
      requestBody:
        content:
          application/xml:
            schema: {type: object}
  /no-schema:
    post:
      requestBody:
        content:
          application/json: {}
`)
	doc, err := NewLoader().LoadBytes(t.Context(), "segments.yaml", data)
	require.NoError(t, err)

	for path, segment := range map[string]string{
		"/no-content": "content",
		"/xml-only":   JSONMediaType,
		"/no-schema":  "schema",
	} {
		_, err := doc.RequestSchema(path, "post")
		var nf *OperationNotFoundError
		require.ErrorAs(t, err, &nf, path)
		assert.Equal(t, segment, nf.Segment, path)
	}

	empty, err := NewLoader().LoadBytes(t.Context(), "empty.yaml", []byte("info: {title: x}"))
	require.NoError(t, err)
	_, err = empty.RequestSchema("/a", "post")
	var nf *OperationNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "paths", nf.Segment)
}

func TestDocument_Operations(t *testing.T) {
	doc := loadFixture(t, sliceBooking)

	ops := doc.Operations()
	require.Len(t, ops, 2)

	assert.Equal(t, "POST /sessions", ops[0].OperationRef.String())
	assert.Equal(t, "createSession", ops[0].OperationID)
	assert.Equal(t, "Book a network slice session", ops[0].Summary)
	assert.Equal(t, []string{"sliceName", "serviceArea", "startTime", "endTime"}, ops[0].Required)

	assert.Equal(t, "PATCH /sessions/{sessionId}", ops[1].OperationRef.String())
	assert.Equal(t, []string{"qosProfile", "latencyMs"}, ops[1].Properties)
}

func TestDocument_DecodeHasNoRefs(t *testing.T) {
	doc := loadFixture(t, sliceBooking)

	tree, err := doc.Decode()
	require.NoError(t, err)
	assert.False(t, containsRef(tree))
}

func containsRef(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t[refKey]; ok {
			return true
		}
		for _, item := range t {
			if containsRef(item) {
				return true
			}
		}
	case []any:
		for _, item := range t {
			if containsRef(item) {
				return true
			}
		}
	}
	return false
}
