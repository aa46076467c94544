// Package output persists a decoded capture as a JSON tree: one aggregate
// document holding every frame, plus one document per record under its
// hour-of-day bucket.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/avlog/internal/clock"
	"github.com/starford/avlog/internal/models"
	"github.com/starford/avlog/internal/pipeline"
	"github.com/starford/avlog/internal/storage"
)

// DefaultAggregateName is the aggregate document's file name.
const DefaultAggregateName = "frames.json"

// RootLayout formats the default output root from the run's start time.
const RootLayout = "2006-01-02T15-04-05"

// DefaultRoot names an output root after the current local time, to the
// second.
func DefaultRoot(c clock.Clock) string {
	return c.Now().Local().Format(RootLayout)
}

// ResolveRoot returns explicit if set, otherwise DefaultRoot.
func ResolveRoot(explicit string, c clock.Clock) string {
	if explicit != "" {
		return explicit
	}
	return DefaultRoot(c)
}

// OpenRoot creates root if needed and returns a storage provider for it.
func OpenRoot(root string) (*storage.FS, error) {
	if err := os.MkdirAll(filepath.Clean(root), 0o755); err != nil {
		return nil, fmt.Errorf("output: create root: %w", err)
	}
	return storage.NewFS(root)
}

// Writer writes the aggregate and per-record documents.
type Writer struct {
	store         storage.Provider
	bucketer      *pipeline.Bucketer
	aggregateName string
}

// NewWriter returns a Writer. An empty aggregateName means
// DefaultAggregateName.
func NewWriter(store storage.Provider, bucketer *pipeline.Bucketer, aggregateName string) *Writer {
	if aggregateName == "" {
		aggregateName = DefaultAggregateName
	}
	return &Writer{store: store, bucketer: bucketer, aggregateName: aggregateName}
}

// AggregateName returns the aggregate document's path in the tree.
func (w *Writer) AggregateName() string { return w.aggregateName }

func marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// WriteAggregate writes every frame, in order, as one JSON array. A nil
// slice is written as [].
func (w *Writer) WriteAggregate(frames []*models.Frame) error {
	if frames == nil {
		frames = []*models.Frame{}
	}
	data, err := marshal(frames)
	if err != nil {
		return fmt.Errorf("output: encode frames: %w", err)
	}
	if err := w.store.Write(w.aggregateName, data); err != nil {
		return fmt.Errorf("output: write aggregate: %w", err)
	}
	return nil
}

// WriteRecords writes each record to its bucket, replacing existing files.
// It returns the relative path written for each record, in input order.
func (w *Writer) WriteRecords(records []*models.Record) ([]string, error) {
	made := make(map[string]struct{})
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		dir := w.bucketer.Dir(rec)
		if _, ok := made[dir]; !ok {
			if err := w.store.EnsureDir(dir); err != nil {
				return nil, fmt.Errorf("output: bucket %s: %w", dir, err)
			}
			made[dir] = struct{}{}
		}

		data, err := marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("output: encode record: %w", err)
		}
		p := w.bucketer.Path(rec)
		if err := w.store.Write(p, data); err != nil {
			return nil, fmt.Errorf("output: write record: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Write persists agg: the aggregate first, then every record.
func (w *Writer) Write(agg *pipeline.Aggregate) ([]string, error) {
	if err := w.WriteAggregate(agg.Frames); err != nil {
		return nil, err
	}
	return w.WriteRecords(agg.Records)
}
