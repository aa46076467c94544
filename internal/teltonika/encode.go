package teltonika

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/starford/avlog/internal/models"
)

// EncodeTCPFrame serializes frame as a TCP frame with a freshly computed
// CRC; frame.CRC is ignored. IO events are written grouped by width, so a
// frame whose events are not already in width order (1, 2, 4, 8, then
// variable) parses back with the events reordered.
func EncodeTCPFrame(frame *models.Frame) ([]byte, error) {
	id, ok := codecID(frame.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, frame.Codec)
	}
	if len(frame.Records) > math.MaxUint8 {
		return nil, fmt.Errorf("teltonika: %d records do not fit in one frame", len(frame.Records))
	}
	lay := layoutFor(id)

	data := []byte{id, byte(len(frame.Records))}
	for i := range frame.Records {
		var err error
		data, err = appendRecord(data, &frame.Records[i], lay)
		if err != nil {
			return nil, fmt.Errorf("teltonika: record %d: %w", i, err)
		}
	}
	data = append(data, byte(len(frame.Records)))

	out := make([]byte, 0, headerLen+len(data)+crcLen)
	out = binary.BigEndian.AppendUint32(out, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, data...)
	out = binary.BigEndian.AppendUint32(out, uint32(CRC16(data)))
	return out, nil
}

func appendUint(b []byte, width int, v uint64) []byte {
	switch width {
	case 1:
		return append(b, byte(v))
	case 2:
		return binary.BigEndian.AppendUint16(b, uint16(v))
	case 4:
		return binary.BigEndian.AppendUint32(b, uint32(v))
	default:
		return binary.BigEndian.AppendUint64(b, v)
	}
}

func appendRecord(b []byte, rec *models.Record, lay layout) ([]byte, error) {
	prio := slices.Index(priorities, rec.Priority)
	if prio < 0 {
		return nil, fmt.Errorf("%w: %q", ErrPriority, rec.Priority)
	}

	b = binary.BigEndian.AppendUint64(b, uint64(rec.Timestamp.UnixMilli()))
	b = append(b, byte(prio))
	b = binary.BigEndian.AppendUint32(b, uint32(int32(math.Round(rec.Longitude*1e7))))
	b = binary.BigEndian.AppendUint32(b, uint32(int32(math.Round(rec.Latitude*1e7))))
	b = binary.BigEndian.AppendUint16(b, uint16(rec.Altitude))
	b = binary.BigEndian.AppendUint16(b, rec.Angle)
	b = append(b, rec.Satellites)
	b = binary.BigEndian.AppendUint16(b, rec.Speed)
	b = appendUint(b, lay.eventID, uint64(rec.TriggerEventID))

	if lay.generation {
		gen := 0
		if rec.GenerationType != nil {
			gen = slices.Index(generationTypes, *rec.GenerationType)
			if gen < 0 {
				return nil, fmt.Errorf("%w: %q", ErrGeneration, *rec.GenerationType)
			}
		}
		b = append(b, byte(gen))
	}

	groups := map[int][]models.IOEvent{}
	for _, ev := range rec.IOEvents {
		switch ev.Value.Width {
		case 0:
			if !lay.variable {
				return nil, fmt.Errorf("teltonika: io %d: variable-length values need codec 8 Extended", ev.ID)
			}
		case 1, 2, 4, 8:
		default:
			return nil, fmt.Errorf("teltonika: io %d: invalid width %d", ev.ID, ev.Value.Width)
		}
		groups[ev.Value.Width] = append(groups[ev.Value.Width], ev)
	}

	b = appendUint(b, lay.count, uint64(len(rec.IOEvents)))
	for _, width := range []int{1, 2, 4, 8} {
		b = appendUint(b, lay.count, uint64(len(groups[width])))
		for _, ev := range groups[width] {
			b = appendUint(b, lay.ioID, uint64(ev.ID))
			b = appendUint(b, width, ev.Value.Uint)
		}
	}
	if lay.variable {
		b = binary.BigEndian.AppendUint16(b, uint16(len(groups[0])))
		for _, ev := range groups[0] {
			b = binary.BigEndian.AppendUint16(b, ev.ID)
			b = binary.BigEndian.AppendUint16(b, uint16(len(ev.Value.Bytes)))
			b = append(b, ev.Value.Bytes...)
		}
	}
	return b, nil
}
