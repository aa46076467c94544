// Package testutil provides shared test helpers for building output trees
// and record catalogs.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/avlog/internal/index"
	"github.com/starford/avlog/internal/models"
	"github.com/starford/avlog/internal/output"
	"github.com/starford/avlog/internal/pipeline"
	"github.com/starford/avlog/internal/storage"
)

// At returns 2024-04-01 h:m UTC.
func At(h, m int) time.Time {
	return time.Date(2024, 4, 1, h, m, 0, 0, time.UTC)
}

// SampleFrames returns three frames holding records at 09:00, 09:30 and
// 14:05 UTC. The middle frame is empty.
func SampleFrames() []*models.Frame {
	return []*models.Frame{
		{Codec: models.CodecC8, CRC: 7, Records: []models.Record{
			{Timestamp: At(9, 0), Priority: models.PriorityLow, Speed: 10, IOEvents: []models.IOEvent{}},
			{Timestamp: At(9, 30), Priority: models.PriorityHigh, Speed: 20, IOEvents: []models.IOEvent{}},
		}},
		{Codec: models.CodecC8Ext, CRC: 8, Records: []models.Record{}},
		{Codec: models.CodecC16, CRC: 9, Records: []models.Record{
			{Timestamp: At(14, 5), Priority: models.PriorityPanic, IOEvents: []models.IOEvent{{ID: 1, Value: models.U8(1)}}},
		}},
	}
}

// TestTree writes frames into a temporary output tree using the default
// aggregate name and UTC buckets.
func TestTree(t *testing.T, frames []*models.Frame) *storage.FS {
	t.Helper()
	store, err := output.OpenRoot(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	agg := pipeline.NewAggregate()
	for _, f := range frames {
		agg.Frames = append(agg.Frames, f)
		for i := range f.Records {
			agg.Records = append(agg.Records, &f.Records[i])
		}
	}
	w := output.NewWriter(store, pipeline.NewBucketer(time.UTC), output.DefaultAggregateName)
	if _, err := w.Write(agg); err != nil {
		t.Fatal(err)
	}
	return store
}

// TestCatalog opens a temporary record catalog loaded with frames.
func TestCatalog(t *testing.T, frames []*models.Frame) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	summary := models.Summary{RunID: "test-run", Frames: len(frames), CompletedAt: time.Now()}
	if err := db.Replace(frames, pipeline.NewBucketer(time.UTC), summary); err != nil {
		t.Fatal(err)
	}
	return db
}
