package teltonika

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/avlog/internal/models"
)

// Sample frames from the Teltonika protocol documentation.
const (
	codec8Sample   = "000000000000003608010000016B40D8EA30010000000000000000000000000000000105021503010101425E0F01F10000601A014E0000000000000000010000C7CF"
	codec8ExSample = "000000000000004A8E010000016B412CEE000100000000000000000000000000000000010005000100010100010011001D00010010015E2C880002000B000000003544C87A000E000000001DD7E06A00000100002994"
	codec16Sample  = "000000000000005F10020000016BDBC7833000000000000000000000000000000000000B05040200010000030002000B00270042563A00000000016BDBC7871800000000000000000000000000000000000B05040200010000030002000B00260042563A00000200005FB3"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// rawFrame wraps data in a preamble, length and a valid CRC.
func rawFrame(data []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, data...)
	return binary.BigEndian.AppendUint32(out, uint32(CRC16(data)))
}

func TestParseTCPFrame_Codec8(t *testing.T) {
	frame, err := ParseTCPFrame(mustHex(t, codec8Sample))
	require.NoError(t, err)

	assert.Equal(t, models.CodecC8, frame.Codec)
	assert.Equal(t, uint32(0xC7CF), frame.CRC)
	require.Len(t, frame.Records, 1)

	rec := frame.Records[0]
	assert.True(t, rec.Timestamp.Equal(time.Date(2019, 6, 10, 10, 4, 46, 0, time.UTC)))
	assert.Equal(t, models.PriorityHigh, rec.Priority)
	assert.Equal(t, uint16(1), rec.TriggerEventID)
	assert.Nil(t, rec.GenerationType)
	assert.Equal(t, []models.IOEvent{
		{ID: 21, Value: models.U8(3)},
		{ID: 1, Value: models.U8(1)},
		{ID: 66, Value: models.U16(24079)},
		{ID: 241, Value: models.U32(24602)},
		{ID: 78, Value: models.U64(0)},
	}, rec.IOEvents)
}

func TestParseTCPFrame_Codec8Extended(t *testing.T) {
	frame, err := ParseTCPFrame(mustHex(t, codec8ExSample))
	require.NoError(t, err)

	assert.Equal(t, models.CodecC8Ext, frame.Codec)
	require.Len(t, frame.Records, 1)
	assert.Equal(t, []models.IOEvent{
		{ID: 1, Value: models.U8(1)},
		{ID: 17, Value: models.U16(29)},
		{ID: 16, Value: models.U32(22949000)},
		{ID: 11, Value: models.U64(893700218)},
		{ID: 14, Value: models.U64(500686954)},
	}, frame.Records[0].IOEvents)
}

func TestParseTCPFrame_Codec16(t *testing.T) {
	frame, err := ParseTCPFrame(mustHex(t, codec16Sample))
	require.NoError(t, err)

	assert.Equal(t, models.CodecC16, frame.Codec)
	require.Len(t, frame.Records, 2)
	for _, rec := range frame.Records {
		assert.Equal(t, models.PriorityLow, rec.Priority)
		assert.Equal(t, uint16(11), rec.TriggerEventID)
		require.NotNil(t, rec.GenerationType)
		assert.Equal(t, models.GenerationOnChange, *rec.GenerationType)
		assert.Len(t, rec.IOEvents, 4)
	}
	assert.Equal(t, "12:06:54", frame.Records[0].Timestamp.Format("15:04:05"))
	assert.Equal(t, "12:06:55", frame.Records[1].Timestamp.Format("15:04:05"))
	assert.Equal(t, models.U16(39), frame.Records[0].IOEvents[2].Value)
	assert.Equal(t, models.U16(38), frame.Records[1].IOEvents[2].Value)
}

func TestEncodeTCPFrame_ReproducesSamples(t *testing.T) {
	for _, sample := range []string{codec8Sample, codec8ExSample, codec16Sample} {
		raw := mustHex(t, sample)
		frame, err := ParseTCPFrame(raw)
		require.NoError(t, err)

		encoded, err := EncodeTCPFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, raw, encoded)
	}
}

func TestRoundTrip_JSONEqual(t *testing.T) {
	gen := models.GenerationPeriodical
	frames := []*models.Frame{
		{
			Codec: models.CodecC8Ext,
			Records: []models.Record{{
				Timestamp:      time.Date(2024, 3, 1, 12, 34, 56, 789_000_000, time.UTC),
				Priority:       models.PriorityPanic,
				Longitude:      -25.4689717,
				Latitude:       61.4977524,
				Altitude:       -12,
				Angle:          270,
				Satellites:     9,
				Speed:          83,
				TriggerEventID: 385,
				IOEvents: []models.IOEvent{
					{ID: 239, Value: models.U8(1)},
					{ID: 66, Value: models.U16(12650)},
					{ID: 385, Value: models.Variable([]byte{0x15, 0x01, 0x02})},
				},
			}},
		},
		{
			Codec: models.CodecC16,
			Records: []models.Record{{
				Timestamp:      time.Date(2024, 3, 1, 23, 0, 0, 1_000_000, time.UTC),
				Priority:       models.PriorityLow,
				TriggerEventID: 0,
				GenerationType: &gen,
				IOEvents:       []models.IOEvent{{ID: 300, Value: models.U32(7)}},
			}},
		},
	}

	for _, want := range frames {
		wire, err := EncodeTCPFrame(want)
		require.NoError(t, err)

		got, err := ParseTCPFrame(wire)
		require.NoError(t, err)

		want.CRC = got.CRC
		wantJSON, err := json.MarshalIndent(want, "", "  ")
		require.NoError(t, err)
		gotJSON, err := json.MarshalIndent(got, "", "  ")
		require.NoError(t, err)
		assert.JSONEq(t, string(wantJSON), string(gotJSON))
	}
}

func TestParseTCPFrame_Errors(t *testing.T) {
	valid := mustHex(t, codec8Sample)

	badCRC := append([]byte{}, valid...)
	badCRC[len(badCRC)-1] ^= 0xFF

	badPreamble := append([]byte{}, valid...)
	badPreamble[0] = 1

	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short header", valid[:6], ErrTruncated},
		{"truncated body", valid[:len(valid)-10], ErrLength},
		{"crc", badCRC, ErrCRC},
		{"preamble", badPreamble, ErrPreamble},
		{"unknown codec", rawFrame([]byte{0x07, 0x00, 0x00}), ErrUnknownCodec},
		{"count mismatch", rawFrame([]byte{Codec8, 0x00, 0x01}), ErrRecordCount},
		{"record truncated", rawFrame([]byte{Codec8, 0x01, 0x00, 0x00}), ErrTruncated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTCPFrame(tc.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			var perr *ParseError
			assert.True(t, errors.As(err, &perr))
		})
	}
}

func TestParseTCPFrame_IgnoresTrailingBytes(t *testing.T) {
	raw := append(mustHex(t, codec8Sample), 0xDE, 0xAD)
	frame, err := ParseTCPFrame(raw)
	require.NoError(t, err)
	assert.Len(t, frame.Records, 1)
}

func TestEncodeTCPFrame_Rejects(t *testing.T) {
	_, err := EncodeTCPFrame(&models.Frame{Codec: "C12"})
	assert.ErrorIs(t, err, ErrUnknownCodec)

	_, err = EncodeTCPFrame(&models.Frame{
		Codec: models.CodecC8,
		Records: []models.Record{{
			Priority: models.PriorityLow,
			IOEvents: []models.IOEvent{{ID: 1, Value: models.Variable([]byte{1})}},
		}},
	})
	assert.Error(t, err)
}

func TestCRC16(t *testing.T) {
	// CRC-16/ARC check value.
	assert.Equal(t, uint16(0xBB3D), CRC16([]byte("123456789")))
}
