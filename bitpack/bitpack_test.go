package bitpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitWriterReaderRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	w := NewBitWriter(buf)

	values := []struct {
		value uint32
		bits  int
	}{
		{1, 1}, {0, 1}, {5, 3}, {12345, 16}, {0xFFFFFFFF, 32}, {7, 4},
	}
	for _, v := range values {
		w.WriteBits(v.value, v.bits)
	}
	w.FlushBits()

	r := NewBitReader(buf, w.BitsWritten())
	for _, v := range values {
		got, err := r.ReadBits(v.bits)
		require.NoError(t, err)
		require.Equal(t, v.value&((uint32(1)<<uint(v.bits))-1), got)
	}
}

func TestBitWriterBytesRoundTrip(t *testing.T) {
	buf := make([]byte, 32)
	w := NewBitWriter(buf)
	w.WriteBits(0b101, 3)
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	w.WriteAlign()
	w.WriteBytes(payload)
	w.FlushBits()

	r := NewBitReader(buf, w.BitsWritten())
	prefix, err := r.ReadBits(3)
	require.NoError(t, err)
	require.EqualValues(t, 0b101, prefix)
	require.NoError(t, r.ReadAlign())
	out := make([]byte, len(payload))
	require.NoError(t, r.ReadBytes(out))
	require.Equal(t, payload, out)
}

func TestStreamSerializeIntegerRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	ws := NewWriteStream(buf)
	v := int32(-7)
	require.NoError(t, ws.SerializeInteger(&v, -10, 10))
	require.NoError(t, ws.SerializeCheck())
	ws.Flush()

	rs := NewReadStream(buf, ws.BitsProcessed())
	var out int32
	require.NoError(t, rs.SerializeInteger(&out, -10, 10))
	require.NoError(t, rs.SerializeCheck())
	require.Equal(t, v, out)
}

func TestStreamSerializeIntegerOutOfRange(t *testing.T) {
	buf := make([]byte, 16)
	ws := NewWriteStream(buf)
	v := int32(100)
	require.ErrorIs(t, ws.SerializeInteger(&v, -10, 10), ErrValueOutOfRange)
}

func TestStreamMeasureMatchesWrite(t *testing.T) {
	ms := NewMeasureStream()
	v := int32(42)
	require.NoError(t, ms.SerializeInteger(&v, 0, 1000))
	require.NoError(t, ms.SerializeCheck())

	buf := make([]byte, 16)
	ws := NewWriteStream(buf)
	require.NoError(t, ws.SerializeInteger(&v, 0, 1000))
	require.NoError(t, ws.SerializeCheck())

	require.Equal(t, ms.BitsProcessed(), ws.BitsProcessed())
}

func TestSequenceRelativeRoundTrip(t *testing.T) {
	cases := []struct{ baseline, value uint16 }{
		{100, 101}, {100, 95}, {65530, 5}, {5, 65530}, {1000, 1500},
	}
	for _, c := range cases {
		buf := make([]byte, 16)
		ws := NewWriteStream(buf)
		v := c.value
		require.NoError(t, ws.SerializeSequenceRelative(c.baseline, &v))
		ws.Flush()

		rs := NewReadStream(buf, ws.BitsProcessed())
		var out uint16
		require.NoError(t, rs.SerializeSequenceRelative(c.baseline, &out))
		require.Equal(t, c.value, out)
	}
}

func TestAckRelativeRoundTrip(t *testing.T) {
	cases := []struct{ sequence, ack uint16 }{
		{100, 99}, {100, 36}, {100, 35}, {5, 65534}, {65535, 0}, {1000, 500},
	}
	for _, c := range cases {
		buf := make([]byte, 16)
		ws := NewWriteStream(buf)
		v := c.ack
		require.NoError(t, ws.SerializeAckRelative(c.sequence, &v))
		ws.Flush()

		rs := NewReadStream(buf, ws.BitsProcessed())
		var out uint16
		require.NoError(t, rs.SerializeAckRelative(c.sequence, &out))
		require.Equal(t, c.ack, out)
	}
}

func TestSequenceGreaterThanWraparound(t *testing.T) {
	require.True(t, SequenceGreaterThan(1, 0))
	require.True(t, SequenceGreaterThan(0, 65535))
	require.False(t, SequenceGreaterThan(0, 1))
	require.Equal(t, 1, SequenceDifference(1, 0))
	require.Equal(t, 1, SequenceDifference(0, 65535))
}

func TestCRC32DetectsSingleBitFlip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	crc := CalculateCRC32(0xDEADBEEF, data)

	flipped := append([]byte(nil), data...)
	flipped[3] ^= 0x01
	require.NotEqual(t, crc, CalculateCRC32(0xDEADBEEF, flipped))
}

func TestBitsRequired(t *testing.T) {
	require.Equal(t, 0, BitsRequired(5, 5))
	require.Equal(t, 1, BitsRequired(0, 1))
	require.Equal(t, 8, BitsRequired(0, 255))
	require.Equal(t, 9, BitsRequired(0, 256))
}
