package pipeline

import (
	"github.com/starford/avlog/internal/decoder"
	"github.com/starford/avlog/internal/models"
)

// Aggregate collects decoded frames in line order and flattens their
// records. Which frame a record came from is not kept.
type Aggregate struct {
	Lines    int
	Frames   []*models.Frame
	Records  []*models.Record
	Failures int
}

// NewAggregate returns an empty Aggregate. Frames is non-nil so an empty
// run still serializes as [].
func NewAggregate() *Aggregate {
	return &Aggregate{Frames: []*models.Frame{}}
}

// Add appends one outcome. Outcomes must arrive in line order.
func (a *Aggregate) Add(o decoder.Outcome) {
	if !o.Decoded() {
		a.Failures++
		return
	}
	a.Frames = append(a.Frames, o.Frame)
	for i := range o.Frame.Records {
		a.Records = append(a.Records, &o.Frame.Records[i])
	}
}
