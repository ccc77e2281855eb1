package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint_ValidDocument(t *testing.T) {
	report, err := NewLoader().Lint(context.Background(), sliceBooking)
	require.NoError(t, err)

	assert.True(t, report.Valid, report.Problems)
	assert.Equal(t, "3.0.3", report.OpenAPI)
	assert.Equal(t, "Network Slice Booking", report.Title)
	assert.Equal(t, 2, report.Paths)
	assert.Len(t, report.Operations, 2)
	assert.Empty(t, report.Warnings)
}

func TestLint_BrokenRefIsLoadError(t *testing.T) {
	report, err := NewLoader().Lint(context.Background(), "testdata/refs/broken.yaml")
	assert.Nil(t, report)
	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLintReport_AddProblems(t *testing.T) {
	r := &LintReport{Valid: true}
	r.addProblems(assert.AnError)
	assert.False(t, r.Valid)
	assert.Equal(t, []string{assert.AnError.Error()}, r.Problems)
}

func TestLint_Warnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
openapi: 3.0.3
info: {title: Warn, version: "1"}
paths:
  /things:
    post:
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [name, ghost]
              properties:
                name: {type: string}
                anything: {description: untyped}
      responses:
        "200": {description: ok}
`), 0o600))

	report, err := NewLoader().Lint(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, report.Warnings, `POST /things: required property "ghost" is not declared`)
	assert.Contains(t, report.Warnings, `POST /things: property "anything" has no type`)
}

func TestLint_UnreadableSource(t *testing.T) {
	_, err := NewLoader().Lint(context.Background(), "testdata/absent.yaml")
	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
}
