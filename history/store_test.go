package history

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/intentflow/extract"
	"github.com/BaSui01/intentflow/schema"
	"github.com/BaSui01/intentflow/synth"
)

func setupStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "history.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := NewGormStore(db, 2, zap.NewNop())
	require.NoError(t, store.AutoMigrate(context.Background()))
	return store
}

func sliceResult(text string) *synth.Result {
	rs := &schema.RequestSchema{
		Operation: schema.NewOperationRef("/sessions", "POST"),
		Properties: []schema.Property{
			{Name: "sliceType", Type: schema.TypeString},
			{Name: "duration", Type: schema.TypeInteger},
		},
		Required: []string{"sliceType", "duration"},
	}
	return synth.Synthesize(rs, extract.Extract(text, rs.Properties))
}

func TestNewRecord_FromResult(t *testing.T) {
	res := sliceResult("a sliceType for my robots")
	op := schema.NewOperationRef("/sessions", "post")

	rec, err := NewRecord("req-1", "NetworkSliceBooking.yaml", op, "a sliceType for my robots", res, nil, 1500*time.Millisecond)
	require.NoError(t, err)

	assert.Len(t, rec.ID, 36)
	assert.Equal(t, StatusIncomplete, rec.Status)
	assert.False(t, rec.Ready)
	assert.Equal(t, int64(1500), rec.DurationMS)
	assert.Equal(t, op, rec.Operation())

	missing, err := rec.Missing()
	require.NoError(t, err)
	assert.Equal(t, res.MissingRequired, missing)

	// 载荷按文档顺序保存
	assert.JSONEq(t, `{"sliceType":"detected_string_value","duration":0}`, string(rec.SuggestedPayload))
	assert.Less(t, indexOf(rec.SuggestedPayload, "sliceType"), indexOf(rec.SuggestedPayload, "duration"))
}

func indexOf(j JSON, s string) int {
	for i := 0; i+len(s) <= len(j); i++ {
		if string(j[i:i+len(s)]) == s {
			return i
		}
	}
	return -1
}

func TestNewRecord_FromError(t *testing.T) {
	op := schema.NewOperationRef("/sessions", "post")
	rec, err := NewRecord("", "missing.yaml", op, "text", nil, errors.New("boom"), time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, "boom", rec.Error)
	assert.Equal(t, "[]", string(rec.MissingRequired))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusError, StatusOf(nil, nil))
	assert.Equal(t, StatusError, StatusOf(&synth.Result{Ready: true}, errors.New("x")))
	assert.Equal(t, StatusReady, StatusOf(&synth.Result{Ready: true}, nil))
	assert.Equal(t, StatusIncomplete, StatusOf(&synth.Result{}, nil))
}

func TestGormStore_SaveGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rec, err := NewRecord("req-9", "NetworkSliceBooking.yaml", schema.NewOperationRef("/sessions", "post"),
		"sliceType please", sliceResult("sliceType please"), nil, time.Second)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.RequestID, got.RequestID)
	assert.Equal(t, rec.Status, got.Status)
	assert.JSONEq(t, string(rec.FoundParameters), string(got.FoundParameters))
	assert.JSONEq(t, string(rec.SuggestedPayload), string(got.SuggestedPayload))

	_, err = store.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, store.Save(ctx, nil))
}

func TestGormStore_ListFiltersAndPages(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	save := func(path string, status Status, offset time.Duration) *Record {
		rec := &Record{
			ID: path + string(status) + offset.String(), Source: "s", Path: path, Method: "post", Text: "t",
			Status: status, MissingRequired: JSON("[]"), FoundParameters: JSON("{}"), SuggestedPayload: JSON("{}"),
			CreatedAt: base.Add(offset),
		}
		require.NoError(t, store.Save(ctx, rec))
		return rec
	}
	oldest := save("/sessions", StatusReady, 0)
	middle := save("/sessions", StatusIncomplete, time.Minute)
	newest := save("/sessions", StatusReady, 2*time.Minute)
	save("/slices", StatusError, 3*time.Minute)

	// 默认每页 2 条，倒序
	page, total, err := store.List(ctx, Filter{Path: "/sessions"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, newest.ID, page[0].ID)
	assert.Equal(t, middle.ID, page[1].ID)

	page, _, err = store.List(ctx, Filter{Path: "/sessions", Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, oldest.ID, page[0].ID)

	page, total, err = store.List(ctx, Filter{Status: StatusReady, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, page, 2)

	page, total, err = store.List(ctx, Filter{Since: base.Add(90 * time.Second), Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, page, 2)
}

func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	ctx := context.Background()

	assert.NoError(t, s.Save(ctx, &Record{}))
	_, err := s.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	list, total, err := s.List(ctx, Filter{})
	assert.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestJSON_ScanAndMarshal(t *testing.T) {
	var j JSON
	require.NoError(t, j.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, string(j))
	require.NoError(t, j.Scan(`[1]`))
	assert.Equal(t, `[1]`, string(j))
	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j)
	assert.Error(t, j.Scan(42))

	out, err := json.Marshal(struct {
		A JSON `json:"a"`
		B JSON `json:"b"`
	}{A: JSON(`{"x":true}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"x":true},"b":null}`, string(out))

	v, err := JSON(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "null", v)
}
