package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"netcore/bitpack"
	"netcore/message"
)

func unreliableRoundTrip(t *testing.T, sender, receiver *UnreliableUnorderedChannel, seq uint16) bool {
	t.Helper()
	data, ok := sender.GetPacketData(64 * 1024)
	if !ok {
		return false
	}

	buf := make([]byte, 16*1024)
	ws := bitpack.NewWriteStream(buf)
	require.NoError(t, sender.WritePacketData(ws, data))
	ws.Flush()

	rs := bitpack.NewReadStream(buf, ws.BitsProcessed())
	read, err := receiver.ReadPacketData(rs)
	require.NoError(t, err)
	require.NoError(t, receiver.ProcessPacketData(read, seq))
	return true
}

func TestUnreliableChannelBestEffortDelivery(t *testing.T) {
	cfg := DefaultConfig()
	sender := NewUnreliableUnorderedChannel(1, cfg, testFactory{})
	receiver := NewUnreliableUnorderedChannel(1, cfg, testFactory{})

	for i := 0; i < 3; i++ {
		require.NoError(t, sender.SendMessage(message.NewMessage(0, &testPayload{Value: uint32(i)})))
	}
	require.True(t, unreliableRoundTrip(t, sender, receiver, 7))
	require.False(t, sender.HasMessagesToSend())

	for i := 0; i < 3; i++ {
		m := receiver.ReceiveMessage()
		require.NotNil(t, m)
		require.Equal(t, uint32(i), m.GetPayload().(*testPayload).Value)
		require.Equal(t, uint16(7), m.ID)
	}
	require.Nil(t, receiver.ReceiveMessage())
}

func TestUnreliableChannelSendQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnreliableSendQueueSize = 2
	sender := NewUnreliableUnorderedChannel(1, cfg, testFactory{})

	require.NoError(t, sender.SendMessage(message.NewMessage(0, &testPayload{Value: 1})))
	require.NoError(t, sender.SendMessage(message.NewMessage(0, &testPayload{Value: 2})))
	err := sender.SendMessage(message.NewMessage(0, &testPayload{Value: 3}))
	require.ErrorIs(t, err, ErrSendQueueFull)
}

func TestUnreliableChannelDropsWhenReceiveQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnreliableReceiveQueueSize = 1
	sender := NewUnreliableUnorderedChannel(1, cfg, testFactory{})
	receiver := NewUnreliableUnorderedChannel(1, cfg, testFactory{})

	require.NoError(t, sender.SendMessage(message.NewMessage(0, &testPayload{Value: 1})))
	require.NoError(t, sender.SendMessage(message.NewMessage(0, &testPayload{Value: 2})))
	require.True(t, unreliableRoundTrip(t, sender, receiver, 3))

	first := receiver.ReceiveMessage()
	require.NotNil(t, first)
	require.Equal(t, uint32(1), first.GetPayload().(*testPayload).Value)
	require.Nil(t, receiver.ReceiveMessage())
}

func TestUnreliableChannelBlockMessage(t *testing.T) {
	cfg := DefaultConfig()
	sender := NewUnreliableUnorderedChannel(2, cfg, testFactory{})
	receiver := NewUnreliableUnorderedChannel(2, cfg, testFactory{})

	m := message.NewBlockMessage(0, &testPayload{Value: 5})
	m.AttachBlock([]byte("hello unreliable block"))
	require.NoError(t, sender.SendMessage(m))
	require.True(t, unreliableRoundTrip(t, sender, receiver, 1))

	received := receiver.ReceiveMessage()
	require.NotNil(t, received)
	require.True(t, received.IsBlock())
	require.Equal(t, []byte("hello unreliable block"), received.BlockData())
}
