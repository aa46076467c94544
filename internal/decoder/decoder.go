// Package decoder turns encoded log lines into frames.
//
// Each line is standard padded base64. The decoded bytes are either a raw
// Teltonika TCP frame (ModeWire) or a JSON-serialized frame as written by
// the vehicle data receiver (ModeSerialized). The mode is fixed for a run.
package decoder

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/avlog/internal/models"
	"github.com/starford/avlog/internal/teltonika"
)

// Mode selects how decoded line bytes are interpreted.
type Mode string

const (
	ModeWire       Mode = "wire"
	ModeSerialized Mode = "serialized"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeWire, ModeSerialized}

// ParseMode converts a config or flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("decoder: unknown mode %q (want %q or %q)", s, ModeWire, ModeSerialized)
}

var (
	// ErrBase64 marks lines that are not valid padded base64.
	ErrBase64 = errors.New("decode error")
	// ErrFrame marks lines whose bytes the frame decoder rejected.
	ErrFrame = errors.New("frame error")
)

// FrameDecoder turns decoded line bytes into a frame. Implementations must
// not retain data after returning.
type FrameDecoder interface {
	Decode(data []byte, mode Mode) (*models.Frame, error)
}

// Teltonika is the FrameDecoder backed by the teltonika wire parser and
// encoding/json.
type Teltonika struct{}

// Decode implements FrameDecoder.
func (Teltonika) Decode(data []byte, mode Mode) (*models.Frame, error) {
	switch mode {
	case ModeWire:
		return teltonika.ParseTCPFrame(data)
	case ModeSerialized:
		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("serialized frame: %w", err)
		}
		if frame.Records == nil {
			frame.Records = []models.Record{}
		}
		return &frame, nil
	}
	return nil, fmt.Errorf("decoder: unknown mode %q", mode)
}

// Outcome is the result of decoding one line. Exactly one of Frame and Err
// is set.
type Outcome struct {
	Index int
	Frame *models.Frame
	Err   error
}

// Decoded reports whether the line produced a frame.
func (o Outcome) Decoded() bool { return o.Err == nil }

// Adapter decodes lines with a fixed mode.
type Adapter struct {
	mode    Mode
	decoder FrameDecoder
}

// NewAdapter returns an Adapter using dec (Teltonika if nil) in mode.
func NewAdapter(mode Mode, dec FrameDecoder) *Adapter {
	if dec == nil {
		dec = Teltonika{}
	}
	return &Adapter{mode: mode, decoder: dec}
}

// Mode returns the adapter's decode mode.
func (a *Adapter) Mode() Mode { return a.mode }

// DecodeLine decodes the line at index. It never panics on bad input and
// has no side effects, so it is safe to call from several goroutines.
func (a *Adapter) DecodeLine(index int, line string) Outcome {
	// DecodeString skips CR and LF; a segment must be one unbroken run.
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		return Outcome{Index: index, Err: fmt.Errorf("%w: line break at offset %d", ErrBase64, i)}
	}
	raw, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return Outcome{Index: index, Err: fmt.Errorf("%w: %w", ErrBase64, err)}
	}
	frame, err := a.decoder.Decode(raw, a.mode)
	if err != nil {
		return Outcome{Index: index, Err: fmt.Errorf("%w: %w", ErrFrame, err)}
	}
	if frame == nil {
		return Outcome{Index: index, Err: fmt.Errorf("%w: decoder returned no frame", ErrFrame)}
	}
	return Outcome{Index: index, Frame: frame}
}
