package fragment

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func makePayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

// Scenario 1: fragment happy path.
func TestSplitAndReassembleHappyPath(t *testing.T) {
	payload := makePayload(1500)
	frags := Split(payload)
	require.Len(t, frags, 2)
	require.Len(t, frags[0].Data, 1024)
	require.Len(t, frags[1].Data, 476)

	buf := NewReassemblyBuffer(64)
	_, done := buf.ProcessFragment(1, frags[0].FragmentID, frags[0].NumFragments, len(frags[0].Data), frags[0].Data)
	require.False(t, done)
	out, done := buf.ProcessFragment(1, frags[1].FragmentID, frags[1].NumFragments, len(frags[1].Data), frags[1].Data)
	require.True(t, done)
	require.True(t, bytes.Equal(payload, out))
}

// Scenario 2: fragment reordered.
func TestReassembleOutOfOrder(t *testing.T) {
	payload := makePayload(1500)
	frags := Split(payload)

	buf := NewReassemblyBuffer(64)
	_, done := buf.ProcessFragment(2, frags[1].FragmentID, frags[1].NumFragments, len(frags[1].Data), frags[1].Data)
	require.False(t, done)
	out, done := buf.ProcessFragment(2, frags[0].FragmentID, frags[0].NumFragments, len(frags[0].Data), frags[0].Data)
	require.True(t, done)
	require.True(t, bytes.Equal(payload, out))
}

// Scenario 3: malicious fragment.
func TestRejectsMaliciousFragment(t *testing.T) {
	buf := NewReassemblyBuffer(64)
	_, done := buf.ProcessFragment(3, 5, 3, MaxFragmentSize, makePayload(MaxFragmentSize))
	require.False(t, done)
	require.False(t, buf.entries.Exists(3))
}

func TestDuplicateFragmentIsIdempotent(t *testing.T) {
	payload := makePayload(1500)
	frags := Split(payload)

	buf := NewReassemblyBuffer(64)
	_, done := buf.ProcessFragment(4, frags[0].FragmentID, frags[0].NumFragments, len(frags[0].Data), frags[0].Data)
	require.False(t, done)

	entry := buf.entries.Find(4)
	require.NotNil(t, entry)
	before := entry.ReceivedFragments

	_, done = buf.ProcessFragment(4, frags[0].FragmentID, frags[0].NumFragments, len(frags[0].Data), frags[0].Data)
	require.False(t, done)
	after := buf.entries.Find(4).ReceivedFragments
	require.Equal(t, before, after)
}

// Scenario 4: a later sequence colliding on the same ring slot as an
// in-progress reassembly must be rejected, not silently evict it.
func TestRejectsSlotCollisionWithInProgressSequence(t *testing.T) {
	payload := makePayload(1500)
	frags := Split(payload)

	buf := NewReassemblyBuffer(64)
	_, done := buf.ProcessFragment(10, frags[0].FragmentID, frags[0].NumFragments, len(frags[0].Data), frags[0].Data)
	require.False(t, done)

	// 74 % 64 == 10 % 64: same ring slot, still inside the lookahead window,
	// but a different, still in-flight sequence.
	_, done = buf.ProcessFragment(74, frags[0].FragmentID, frags[0].NumFragments, len(frags[0].Data), frags[0].Data)
	require.False(t, done)
	require.False(t, buf.entries.Exists(74))

	entry := buf.entries.Find(10)
	require.NotNil(t, entry)
	require.Equal(t, 1, entry.ReceivedFragments)

	out, done := buf.ProcessFragment(10, frags[1].FragmentID, frags[1].NumFragments, len(frags[1].Data), frags[1].Data)
	require.True(t, done)
	require.True(t, bytes.Equal(payload, out))
}

func TestRejectsBadFragmentSize(t *testing.T) {
	buf := NewReassemblyBuffer(64)
	_, done := buf.ProcessFragment(5, 0, 2, MaxFragmentSize-1, makePayload(MaxFragmentSize-1))
	require.False(t, done)
}

func TestFragmentWireRoundTrip(t *testing.T) {
	data := makePayload(900)
	frag := Fragment{FragmentID: 1, NumFragments: 3, Data: data}

	buf := make([]byte, 2048)
	n, err := WritePacket(buf, 0xABCD1234, 1, 77, frag)
	require.NoError(t, err)

	seq, got, err := ReadPacket(buf, n*8, 0xABCD1234, 1)
	require.NoError(t, err)
	require.EqualValues(t, 77, seq)
	require.Equal(t, frag.FragmentID, got.FragmentID)
	require.Equal(t, frag.NumFragments, got.NumFragments)
	require.True(t, bytes.Equal(data, got.Data))
}
