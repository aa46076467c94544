// Package teltonika parses and encodes Teltonika AVL TCP frames
// (codec 8, codec 8 Extended and codec 16).
//
// A TCP frame is laid out as:
//
//	preamble    4 bytes, always zero
//	data length 4 bytes, counts codec ID through the second record count
//	codec ID    1 byte
//	count       1 byte
//	records     variable
//	count       1 byte, must equal the first count
//	CRC         4 bytes, CRC-16/IBM of codec ID through the second count
//
// All integers are big-endian.
package teltonika

import (
	"errors"
	"fmt"

	"github.com/starford/avlog/internal/models"
)

// Codec IDs as they appear on the wire.
const (
	Codec8    byte = 0x08
	Codec8Ext byte = 0x8E
	Codec16   byte = 0x10
)

const (
	preambleLen = 4
	headerLen   = preambleLen + 4
	crcLen      = 4
	gpsLen      = 15
)

var (
	ErrPreamble     = errors.New("teltonika: non-zero preamble")
	ErrTruncated    = errors.New("teltonika: truncated frame")
	ErrLength       = errors.New("teltonika: data length mismatch")
	ErrUnknownCodec = errors.New("teltonika: unknown codec")
	ErrRecordCount  = errors.New("teltonika: record count mismatch")
	ErrCRC          = errors.New("teltonika: crc mismatch")
	ErrPriority     = errors.New("teltonika: invalid priority")
	ErrGeneration   = errors.New("teltonika: invalid generation type")
)

// ParseError reports where in the frame parsing stopped.
type ParseError struct {
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

func (e *ParseError) Unwrap() error { return e.Err }

func codecName(id byte) (models.Codec, bool) {
	switch id {
	case Codec8:
		return models.CodecC8, true
	case Codec8Ext:
		return models.CodecC8Ext, true
	case Codec16:
		return models.CodecC16, true
	}
	return "", false
}

func codecID(c models.Codec) (byte, bool) {
	switch c {
	case models.CodecC8:
		return Codec8, true
	case models.CodecC8Ext:
		return Codec8Ext, true
	case models.CodecC16:
		return Codec16, true
	}
	return 0, false
}

var priorities = []models.Priority{models.PriorityLow, models.PriorityHigh, models.PriorityPanic}

var generationTypes = []models.GenerationType{
	models.GenerationOnExit,
	models.GenerationOnEntrance,
	models.GenerationOnBoth,
	models.GenerationReserved,
	models.GenerationHysteresis,
	models.GenerationOnChange,
	models.GenerationEventual,
	models.GenerationPeriodical,
}

// CRC16 computes CRC-16/IBM (reflected polynomial 0xA001, zero init).
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
