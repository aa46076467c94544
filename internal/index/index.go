package index

import (
	"time"

	"github.com/starford/avlog/internal/models"
)

// Placer maps a record to its place in the output tree.
type Placer interface {
	Hour(rec *models.Record) int
	Path(rec *models.Record) string
}

// Catalog defines the catalog operations used by the conversion run and
// the browse surfaces. Consumers should depend on this interface rather
// than the concrete *DB type.
type Catalog interface {
	Replace(frames []*models.Frame, place Placer, summary models.Summary) error
	Hours() ([]HourCount, error)
	Stats() (Stats, error)
	RecordsBetween(from, to time.Time, limit int) ([]RecordRow, error)
	LastRun() (*models.Summary, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
