package pipeline

import (
	"path"
	"strconv"
	"time"

	"github.com/starford/avlog/internal/models"
)

// RecordTimeLayout names per-record files: hour, minute, second and
// milliseconds.
const RecordTimeLayout = "15:04:05.000"

// Bucketer places records into hour-of-day directories.
//
// Only the hour of day is used, so records from different days land in the
// same 0-23 directories, and two records with the same millisecond
// timestamp share a file (the later write wins).
type Bucketer struct {
	loc *time.Location
}

// NewBucketer returns a Bucketer that reads timestamps in loc (UTC if nil).
func NewBucketer(loc *time.Location) *Bucketer {
	if loc == nil {
		loc = time.UTC
	}
	return &Bucketer{loc: loc}
}

// Hour returns the record's hour of day, 0-23.
func (b *Bucketer) Hour(rec *models.Record) int {
	return rec.Timestamp.In(b.loc).Hour()
}

// Dir returns the bucket directory name for rec.
func (b *Bucketer) Dir(rec *models.Record) string {
	return strconv.Itoa(b.Hour(rec))
}

// FileName returns the per-record file name, e.g. "12:34:56.789.json".
func (b *Bucketer) FileName(rec *models.Record) string {
	return rec.Timestamp.In(b.loc).Format(RecordTimeLayout) + ".json"
}

// Path returns the slash-separated path of rec relative to the output root.
func (b *Bucketer) Path(rec *models.Record) string {
	return path.Join(b.Dir(rec), b.FileName(rec))
}
