package chunk

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"netcore/bitpack"
)

func makeData(n int) []byte {
	d := make([]byte, n)
	for i := range d {
		d[i] = byte(i % 251)
	}
	return d
}

func TestSlicePacketSerializeRoundTrip(t *testing.T) {
	p := &SlicePacket{ChunkID: 3, SliceID: 2, NumSlices: 3, SliceBytes: 500, Data: makeData(500)}
	buf := make([]byte, 4096)
	ws := bitpack.NewWriteStream(buf)
	require.NoError(t, p.Serialize(ws))
	ws.Flush()

	rs := bitpack.NewReadStream(buf, ws.BitsProcessed())
	var got SlicePacket
	require.NoError(t, got.Serialize(rs))
	require.Equal(t, p.ChunkID, got.ChunkID)
	require.Equal(t, p.SliceID, got.SliceID)
	require.Equal(t, p.NumSlices, got.NumSlices)
	require.True(t, bytes.Equal(p.Data, got.Data))
}

func TestAckPacketSerializeRoundTrip(t *testing.T) {
	p := &AckPacket{ChunkID: 9, NumSlices: 5, Acked: []bool{true, false, true, true, false}}
	buf := make([]byte, 256)
	ws := bitpack.NewWriteStream(buf)
	require.NoError(t, p.Serialize(ws))
	ws.Flush()

	rs := bitpack.NewReadStream(buf, ws.BitsProcessed())
	var got AckPacket
	require.NoError(t, got.Serialize(rs))
	require.Equal(t, p.Acked, got.Acked)
}

// Scenario 5: block streaming, 10 KiB block with 1024-byte slices -> 10 slices.
func TestSenderReceiverFullChunkTransfer(t *testing.T) {
	data := makeData(10 * 1024)
	sender := NewSender()
	require.NoError(t, sender.SendChunk(data))

	receiver := NewReceiver()
	now := time.Now()

	var chunkData []byte
	var read bool
	for sender.Sending() {
		slice, ok := sender.GenerateSlicePacket(now)
		if ok {
			receiver.ProcessSlicePacket(slice, now)
		}
		// The receiver only acks the completed chunk (via a forced re-ack
		// of the previous chunk) once the chunk has been read.
		if d, ok := receiver.ReadChunk(); ok {
			chunkData, read = d, true
		}
		if ack, ok := receiver.GenerateAckPacket(now); ok {
			sender.ProcessAckPacket(ack)
		}
		now = now.Add(SliceMinimumResendTime + time.Millisecond)
	}

	require.True(t, read)
	require.True(t, bytes.Equal(data, chunkData))
}

func TestSenderRejectsSecondChunkWhileSending(t *testing.T) {
	sender := NewSender()
	require.NoError(t, sender.SendChunk(makeData(2048)))
	require.ErrorIs(t, sender.SendChunk(makeData(100)), ErrAlreadySending)
}

func TestReceiverForceAcksPreviousChunkOnLostFinalAck(t *testing.T) {
	sender := NewSender()
	require.NoError(t, sender.SendChunk(makeData(SliceSize)))
	receiver := NewReceiver()
	now := time.Now()

	slice, ok := sender.GenerateSlicePacket(now)
	require.True(t, ok)
	receiver.ProcessSlicePacket(slice, now)
	_, ok = receiver.ReadChunk()
	require.True(t, ok)
	require.EqualValues(t, 1, receiver.chunkID)

	sender = NewSender()
	require.NoError(t, sender.SendChunk(makeData(SliceSize)))
	sender.chunkID = 0 // simulate the sender never having seen the ack, still on chunk 0
	slice, ok = sender.GenerateSlicePacket(now)
	require.True(t, ok)

	receiver.ProcessSlicePacket(slice, now)
	require.True(t, receiver.forceAckPreviousChunk)
}
