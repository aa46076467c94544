// Package models defines the telemetry types shared by the decoder, the
// pipeline and the output tree.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Codec identifies the AVL data codec a frame was encoded with.
type Codec string

const (
	CodecC8    Codec = "C8"
	CodecC8Ext Codec = "C8Ext"
	CodecC16   Codec = "C16"
)

// Priority is the record priority reported by the device.
type Priority string

const (
	PriorityLow   Priority = "Low"
	PriorityHigh  Priority = "High"
	PriorityPanic Priority = "Panic"
)

// GenerationType is the event generation cause carried by codec 16 records.
type GenerationType string

const (
	GenerationOnExit     GenerationType = "OnExit"
	GenerationOnEntrance GenerationType = "OnEntrance"
	GenerationOnBoth     GenerationType = "OnBoth"
	GenerationReserved   GenerationType = "Reserved"
	GenerationHysteresis GenerationType = "Hysteresis"
	GenerationOnChange   GenerationType = "OnChange"
	GenerationEventual   GenerationType = "Eventual"
	GenerationPeriodical GenerationType = "Periodical"
)

// Frame is one decoded AVL data packet. Frames are immutable once decoded.
type Frame struct {
	Codec   Codec    `json:"codec"`
	Records []Record `json:"records"`
	CRC     uint32   `json:"crc"`
}

// Record is a single timestamped AVL entry inside a frame.
type Record struct {
	Timestamp      time.Time       `json:"timestamp"`
	Priority       Priority        `json:"priority"`
	Longitude      float64         `json:"longitude"`
	Latitude       float64         `json:"latitude"`
	Altitude       int16           `json:"altitude"`
	Angle          uint16          `json:"angle"`
	Satellites     uint8           `json:"satellites"`
	Speed          uint16          `json:"speed"`
	TriggerEventID uint16          `json:"trigger_event_id"`
	GenerationType *GenerationType `json:"generation_type"`
	IOEvents       []IOEvent       `json:"io_events"`
}

// IOEvent is one IO element of a record.
type IOEvent struct {
	ID    uint16  `json:"id"`
	Value IOValue `json:"value"`
}

// IOValue holds an IO element value together with its wire width.
// Width is 1, 2, 4 or 8 for fixed-size values and 0 for variable-length
// values, which are kept in Bytes.
type IOValue struct {
	Width int
	Uint  uint64
	Bytes []byte
}

// U8 returns a one-byte IO value.
func U8(v uint8) IOValue { return IOValue{Width: 1, Uint: uint64(v)} }

// U16 returns a two-byte IO value.
func U16(v uint16) IOValue { return IOValue{Width: 2, Uint: uint64(v)} }

// U32 returns a four-byte IO value.
func U32(v uint32) IOValue { return IOValue{Width: 4, Uint: uint64(v)} }

// U64 returns an eight-byte IO value.
func U64(v uint64) IOValue { return IOValue{Width: 8, Uint: v} }

// Variable returns a variable-length IO value (codec 8 Extended only).
func Variable(b []byte) IOValue { return IOValue{Bytes: append([]byte{}, b...)} }

// tag returns the JSON key the receiver uses for this value's width.
func (v IOValue) tag() (string, error) {
	switch v.Width {
	case 0:
		return "Variable", nil
	case 1:
		return "U8", nil
	case 2:
		return "U16", nil
	case 4:
		return "U32", nil
	case 8:
		return "U64", nil
	}
	return "", fmt.Errorf("models: invalid io value width %d", v.Width)
}

// MarshalJSON encodes the value as a single-key object tagged by width,
// e.g. {"U16":24079} or {"Variable":[1,2,3]}.
func (v IOValue) MarshalJSON() ([]byte, error) {
	tag, err := v.tag()
	if err != nil {
		return nil, err
	}
	if v.Width == 0 {
		ints := make([]int, len(v.Bytes))
		for i, b := range v.Bytes {
			ints[i] = int(b)
		}
		return json.Marshal(map[string][]int{tag: ints})
	}
	return json.Marshal(map[string]uint64{tag: v.Uint})
}

// UnmarshalJSON decodes the width-tagged object produced by MarshalJSON.
func (v *IOValue) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("models: io value: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("models: io value must have exactly one key, got %d", len(raw))
	}
	for tag, body := range raw {
		if tag == "Variable" {
			// A []byte target would expect base64, so decode through []int.
			var wide []int
			if err := json.Unmarshal(body, &wide); err != nil {
				return fmt.Errorf("models: io value %s: %w", tag, err)
			}
			b := make([]byte, len(wide))
			for i, n := range wide {
				if n < 0 || n > 255 {
					return fmt.Errorf("models: io value %s: byte %d out of range", tag, n)
				}
				b[i] = byte(n)
			}
			*v = IOValue{Bytes: b}
			return nil
		}

		var width int
		var limit uint64
		switch tag {
		case "U8":
			width, limit = 1, 0xFF
		case "U16":
			width, limit = 2, 0xFFFF
		case "U32":
			width, limit = 4, 0xFFFFFFFF
		case "U64":
			width, limit = 8, ^uint64(0)
		default:
			return fmt.Errorf("models: unknown io value tag %q", tag)
		}
		var n uint64
		if err := json.Unmarshal(body, &n); err != nil {
			return fmt.Errorf("models: io value %s: %w", tag, err)
		}
		if n > limit {
			return fmt.Errorf("models: io value %s: %d overflows", tag, n)
		}
		*v = IOValue{Width: width, Uint: n}
	}
	return nil
}

// Summary describes the result of one conversion run.
type Summary struct {
	RunID       string    `json:"run_id"`
	Input       string    `json:"input"`
	OutputRoot  string    `json:"output_root"`
	Lines       int       `json:"lines"`
	Frames      int       `json:"frames"`
	Records     int       `json:"records"`
	Failures    int       `json:"failures"`
	Checksum    string    `json:"checksum"`
	CompletedAt time.Time `json:"completed_at"`
}
