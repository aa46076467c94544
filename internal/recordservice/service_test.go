package recordservice

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/avlog/internal/apperr"
	"github.com/starford/avlog/internal/models"
	"github.com/starford/avlog/internal/output"
	"github.com/starford/avlog/internal/testutil"
)

func newService(t *testing.T, withCatalog bool) *Service {
	t.Helper()
	frames := testutil.SampleFrames()
	store := testutil.TestTree(t, frames)
	if !withCatalog {
		return NewService(store, nil, output.DefaultAggregateName)
	}
	return NewService(store, testutil.TestCatalog(t, frames), output.DefaultAggregateName)
}

func TestFrames(t *testing.T) {
	svc := newService(t, false)
	raw, err := svc.Frames(context.Background())
	require.NoError(t, err)

	var frames []models.Frame
	require.NoError(t, json.Unmarshal(raw, &frames))
	require.Len(t, frames, 3)
	assert.Equal(t, models.CodecC16, frames[2].Codec)
}

func TestFrames_MissingAggregate(t *testing.T) {
	svc := NewService(testutil.TestTree(t, nil), nil, "other.json")
	_, err := svc.Frames(context.Background())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHours(t *testing.T) {
	svc := newService(t, false)
	hours, err := svc.Hours(context.Background())
	require.NoError(t, err)
	require.Len(t, hours, 2)
	assert.Equal(t, 9, hours[0].Hour)
	assert.Equal(t, 2, hours[0].Records)
	assert.Equal(t, 14, hours[1].Hour)
	assert.Equal(t, 1, hours[1].Records)
}

func TestHours_EmptyTree(t *testing.T) {
	svc := NewService(testutil.TestTree(t, nil), nil, output.DefaultAggregateName)
	hours, err := svc.Hours(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hours)
	assert.NotNil(t, hours)
}

func TestRecords(t *testing.T) {
	svc := newService(t, false)
	entries, err := svc.Records(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "9/09:00:00.000.json", entries[0].Path)
	assert.Equal(t, "9/09:30:00.000.json", entries[1].Path)

	_, err = svc.Records(context.Background(), 3)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Records(context.Background(), 24)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuery)
}

func TestRecord(t *testing.T) {
	svc := newService(t, false)
	detail, err := svc.Record(context.Background(), 14, "14:05:00.000.json")
	require.NoError(t, err)
	assert.Equal(t, "14/14:05:00.000.json", detail.Path)
	assert.Len(t, detail.Checksum, 64)

	var rec models.Record
	require.NoError(t, json.Unmarshal(detail.Record, &rec))
	assert.Equal(t, models.PriorityPanic, rec.Priority)
	require.Len(t, rec.IOEvents, 1)
	assert.Equal(t, models.U8(1), rec.IOEvents[0].Value)
}

func TestRecord_BadInput(t *testing.T) {
	svc := newService(t, false)
	ctx := context.Background()

	_, err := svc.Record(ctx, 9, "../frames.json")
	assert.ErrorIs(t, err, apperr.ErrInvalidQuery)
	_, err = svc.Record(ctx, 9, "notes.txt")
	assert.ErrorIs(t, err, apperr.ErrInvalidQuery)
	_, err = svc.Record(ctx, 9, "09:59:59.999.json")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestQuery(t *testing.T) {
	svc := newService(t, true)
	rows, err := svc.Query(context.Background(), testutil.At(9, 15), time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "9/09:30:00.000.json", rows[0].Path)
	assert.Equal(t, "14/14:05:00.000.json", rows[1].Path)

	none, err := svc.Query(context.Background(), testutil.At(20, 0), time.Time{}, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestQuery_NoCatalog(t *testing.T) {
	svc := newService(t, false)
	_, err := svc.Query(context.Background(), time.Time{}, time.Time{}, 0)
	assert.ErrorIs(t, err, apperr.ErrNoCatalog)
	_, err = svc.Stats(context.Background())
	assert.ErrorIs(t, err, apperr.ErrNoCatalog)
}

func TestStats(t *testing.T) {
	svc := newService(t, true)
	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st.Frames)
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 2, st.Hours)
}

func TestLastRun(t *testing.T) {
	svc := newService(t, false)
	_, err := svc.LastRun(context.Background())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	svc.SetLastRun(models.Summary{RunID: "r1", Records: 3})
	got, err := svc.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RunID)
}

func TestLastRun_FallsBackToCatalog(t *testing.T) {
	svc := newService(t, true)
	got, err := svc.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-run", got.RunID)
}
