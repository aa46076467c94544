package teltonika

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/starford/avlog/internal/models"
)

// reader walks a byte slice, tracking the absolute offset for errors.
type reader struct {
	buf  []byte
	pos  int
	base int
}

func (r *reader) fail(err error) error {
	return &ParseError{Offset: r.base + r.pos, Err: err}
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.pos < n {
		return nil, r.fail(ErrTruncated)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint(width int) (uint64, error) {
	b, err := r.take(width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	case 8:
		return binary.BigEndian.Uint64(b), nil
	}
	return 0, fmt.Errorf("teltonika: unsupported integer width %d", width)
}

// layout describes the field widths that differ between codecs.
type layout struct {
	eventID    int
	count      int
	ioID       int
	generation bool
	variable   bool
}

func layoutFor(codec byte) layout {
	switch codec {
	case Codec8Ext:
		return layout{eventID: 2, count: 2, ioID: 2, variable: true}
	case Codec16:
		return layout{eventID: 2, count: 1, ioID: 2, generation: true}
	default:
		return layout{eventID: 1, count: 1, ioID: 1}
	}
}

// ParseTCPFrame decodes one complete TCP frame. Bytes following the CRC
// are ignored. The input slice is not retained.
func ParseTCPFrame(b []byte) (*models.Frame, error) {
	head := &reader{buf: b}
	preamble, err := head.take(preambleLen)
	if err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(preamble) != 0 {
		return nil, &ParseError{Offset: 0, Err: ErrPreamble}
	}
	length, err := head.uint(4)
	if err != nil {
		return nil, err
	}
	if uint64(len(b)-headerLen) < length+crcLen {
		return nil, &ParseError{Offset: headerLen, Err: fmt.Errorf("%w: header says %d bytes, have %d", ErrLength, length, len(b)-headerLen-crcLen)}
	}
	data := b[headerLen : headerLen+int(length)]
	wantCRC := binary.BigEndian.Uint32(b[headerLen+int(length):])
	if got := uint32(CRC16(data)); got != wantCRC {
		return nil, &ParseError{Offset: headerLen + int(length), Err: fmt.Errorf("%w: computed %#04x, frame has %#04x", ErrCRC, got, wantCRC)}
	}

	frame, err := parseData(&reader{buf: data, base: headerLen})
	if err != nil {
		return nil, err
	}
	frame.CRC = wantCRC
	return frame, nil
}

// parseData decodes the CRC-covered part of a frame.
func parseData(r *reader) (*models.Frame, error) {
	id, err := r.uint(1)
	if err != nil {
		return nil, err
	}
	codec, ok := codecName(byte(id))
	if !ok {
		return nil, &ParseError{Offset: r.base, Err: fmt.Errorf("%w: %#02x", ErrUnknownCodec, id)}
	}
	lay := layoutFor(byte(id))

	count, err := r.uint(1)
	if err != nil {
		return nil, err
	}
	records := make([]models.Record, 0, count)
	for range count {
		rec, err := parseRecord(r, lay)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	trailer, err := r.uint(1)
	if err != nil {
		return nil, err
	}
	if trailer != count {
		return nil, r.fail(fmt.Errorf("%w: %d then %d", ErrRecordCount, count, trailer))
	}
	if r.pos != len(r.buf) {
		return nil, r.fail(fmt.Errorf("%w: %d unread bytes", ErrLength, len(r.buf)-r.pos))
	}
	return &models.Frame{Codec: codec, Records: records}, nil
}

func parseRecord(r *reader, lay layout) (models.Record, error) {
	var rec models.Record

	ms, err := r.uint(8)
	if err != nil {
		return rec, err
	}
	rec.Timestamp = time.UnixMilli(int64(ms)).UTC()

	prio, err := r.uint(1)
	if err != nil {
		return rec, err
	}
	if prio >= uint64(len(priorities)) {
		return rec, r.fail(fmt.Errorf("%w: %d", ErrPriority, prio))
	}
	rec.Priority = priorities[prio]

	gps, err := r.take(gpsLen)
	if err != nil {
		return rec, err
	}
	rec.Longitude = float64(int32(binary.BigEndian.Uint32(gps[0:4]))) / 1e7
	rec.Latitude = float64(int32(binary.BigEndian.Uint32(gps[4:8]))) / 1e7
	rec.Altitude = int16(binary.BigEndian.Uint16(gps[8:10]))
	rec.Angle = binary.BigEndian.Uint16(gps[10:12])
	rec.Satellites = gps[12]
	rec.Speed = binary.BigEndian.Uint16(gps[13:15])

	event, err := r.uint(lay.eventID)
	if err != nil {
		return rec, err
	}
	rec.TriggerEventID = uint16(event)

	if lay.generation {
		g, err := r.uint(1)
		if err != nil {
			return rec, err
		}
		if g >= uint64(len(generationTypes)) {
			return rec, r.fail(fmt.Errorf("%w: %d", ErrGeneration, g))
		}
		gt := generationTypes[g]
		rec.GenerationType = &gt
	}

	// The total IO count is informational; the per-width counts drive parsing.
	if _, err := r.uint(lay.count); err != nil {
		return rec, err
	}

	rec.IOEvents = []models.IOEvent{}
	for _, width := range []int{1, 2, 4, 8} {
		n, err := r.uint(lay.count)
		if err != nil {
			return rec, err
		}
		for range n {
			id, err := r.uint(lay.ioID)
			if err != nil {
				return rec, err
			}
			v, err := r.uint(width)
			if err != nil {
				return rec, err
			}
			rec.IOEvents = append(rec.IOEvents, models.IOEvent{
				ID:    uint16(id),
				Value: models.IOValue{Width: width, Uint: v},
			})
		}
	}

	if lay.variable {
		n, err := r.uint(2)
		if err != nil {
			return rec, err
		}
		for range n {
			id, err := r.uint(2)
			if err != nil {
				return rec, err
			}
			size, err := r.uint(2)
			if err != nil {
				return rec, err
			}
			b, err := r.take(int(size))
			if err != nil {
				return rec, err
			}
			rec.IOEvents = append(rec.IOEvents, models.IOEvent{ID: uint16(id), Value: models.Variable(b)})
		}
	}

	return rec, nil
}
