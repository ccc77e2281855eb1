package intentflow

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/intentflow/schema"
)

const sliceContract = "schema/testdata/NetworkSliceBooking.yaml"

func TestAnalyze(t *testing.T) {
	res, err := Analyze(context.Background(), "sliceName only", sliceContract, "/sessions", "POST")
	require.NoError(t, err)

	assert.False(t, res.Ready)
	assert.Equal(t, []string{"serviceArea", "startTime", "endTime"}, res.MissingRequired)
	assert.Equal(t, "post", res.Operation.Method)
}

func TestAnalyze_OperationNotFound(t *testing.T) {
	_, err := Analyze(context.Background(), "anything", sliceContract, "/nope", "post")

	var notFound *schema.OperationNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "/nope", notFound.Path)
}

func TestAnalyzeBytes_MatchesAnalyze(t *testing.T) {
	data, err := os.ReadFile(sliceContract)
	require.NoError(t, err)

	text := "sliceName serviceArea startTime endTime"
	fromFile, err := Analyze(context.Background(), text, sliceContract, "/sessions", "post")
	require.NoError(t, err)
	fromBytes, err := AnalyzeBytes(context.Background(), text, sliceContract, data, "/sessions", "post")
	require.NoError(t, err)

	assert.True(t, fromBytes.Ready)
	assert.Equal(t, fromFile.SchemaProperties, fromBytes.SchemaProperties)
	assert.Equal(t, fromFile.MissingRequired, fromBytes.MissingRequired)
}
