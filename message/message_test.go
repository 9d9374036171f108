package message

import (
	"testing"

	"github.com/stretchr/testify/require"

	"netcore/bitpack"
)

type testPayload struct{ value int32 }

func (p *testPayload) Serialize(s *bitpack.Stream) error {
	return s.SerializeInteger(&p.value, -100, 100)
}

func TestMessageRefCounting(t *testing.T) {
	m := NewMessage(1, &testPayload{value: 5})
	require.Equal(t, 1, m.RefCount())

	m.AddRef() // send-queue slot
	m.AddRef() // sent-packet-entry
	require.Equal(t, 3, m.RefCount())

	require.False(t, m.Release())
	require.False(t, m.Release())
	require.True(t, m.Release())
}

func TestBlockMessageAttach(t *testing.T) {
	m := NewBlockMessage(2, &testPayload{})
	require.False(t, m.IsBlock())
	m.AttachBlock([]byte{1, 2, 3})
	require.True(t, m.IsBlock())
	require.Equal(t, []byte{1, 2, 3}, m.BlockData())
}

func TestMessageSerializeRoundTrip(t *testing.T) {
	m := NewMessage(0, &testPayload{value: -42})
	buf := make([]byte, 16)
	ws := bitpack.NewWriteStream(buf)
	require.NoError(t, m.Serialize(ws))
	ws.Flush()

	out := NewMessage(0, &testPayload{})
	rs := bitpack.NewReadStream(buf, ws.BitsProcessed())
	require.NoError(t, out.Serialize(rs))
	require.Equal(t, m.payload.(*testPayload).value, out.payload.(*testPayload).value)
}
