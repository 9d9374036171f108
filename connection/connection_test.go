package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"netcore/bitpack"
	"netcore/channel"
	"netcore/message"
)

type testPayload struct {
	Value uint32
}

func (p *testPayload) Serialize(s *bitpack.Stream) error {
	return s.SerializeBits(&p.Value, 32)
}

type testFactory struct{}

func (testFactory) NumTypes() int { return 1 }
func (testFactory) Create(msgType uint32) (message.Payload, error) {
	return &testPayload{}, nil
}

func newTestConnection(t *testing.T, protocolID uint32) *Connection {
	t.Helper()
	cfg := DefaultConfig(protocolID, 2)
	cfg.Channels[1].Kind = Unreliable

	channels := make([]Channel, len(cfg.Channels))
	for i, setup := range cfg.Channels {
		channels[i] = NewChannel(setup.Kind, i, setup.Config, testFactory{})
	}
	return NewConnection(cfg, channels, nil)
}

func TestConnectionReliableRoundTrip(t *testing.T) {
	sender := newTestConnection(t, 0xCAFEBABE)
	receiver := newTestConnection(t, 0xCAFEBABE)

	now := time.Now()
	sender.AdvanceTime(now)
	receiver.AdvanceTime(now)

	reliable := sender.channels[0].(*channel.ReliableOrderedChannel)
	for i := 0; i < 3; i++ {
		require.NoError(t, reliable.SendMessage(message.NewMessage(0, &testPayload{Value: uint32(i)})))
	}

	for i := 0; i < 10 && reliable.HasMessagesToSend(); i++ {
		datagrams, err := sender.GeneratePacket()
		require.NoError(t, err)
		require.Len(t, datagrams, 1)

		require.NoError(t, receiver.ProcessDatagram(datagrams[0]))

		// Round-trip one empty ack-only packet back so the sender
		// learns its packet was received.
		ackDatagrams, err := receiver.GeneratePacket()
		require.NoError(t, err)
		require.NoError(t, sender.ProcessDatagram(ackDatagrams[0]))

		now = now.Add(150 * time.Millisecond)
		sender.AdvanceTime(now)
		receiver.AdvanceTime(now)
	}

	receiverReliable := receiver.channels[0].(*channel.ReliableOrderedChannel)
	for i := 0; i < 3; i++ {
		m := receiverReliable.ReceiveMessage()
		require.NotNil(t, m)
		require.Equal(t, uint32(i), m.GetPayload().(*testPayload).Value)
	}
	require.Equal(t, ErrorNone, sender.ErrorLevel())
	require.Equal(t, ErrorNone, receiver.ErrorLevel())
}

func TestConnectionRejectsCorruptDatagram(t *testing.T) {
	receiver := newTestConnection(t, 0x1)
	corrupt := []byte{0, 1, 2, 3, 4, 5}
	err := receiver.ProcessDatagram(corrupt)
	require.Error(t, err)
	require.Equal(t, ErrorReadPacketFailed, receiver.ErrorLevel())
}

func TestConnectionFragmentsOversizePacket(t *testing.T) {
	sender := newTestConnection(t, 0xABCD)
	sender.config.FragmentPacketsAbove = 64

	receiver := newTestConnection(t, 0xABCD)

	unreliable := sender.channels[1].(*channel.UnreliableUnorderedChannel)
	big := make([]byte, 4000)
	for i := range big {
		big[i] = byte(i)
	}
	m := message.NewBlockMessage(0, &testPayload{Value: 1})
	m.AttachBlock(big)
	require.NoError(t, unreliable.SendMessage(m))

	datagrams, err := sender.GeneratePacket()
	require.NoError(t, err)
	require.Greater(t, len(datagrams), 1)

	for _, d := range datagrams[:len(datagrams)-1] {
		require.NoError(t, receiver.ProcessDatagram(d))
	}
	receiverUnreliable := receiver.channels[1].(*channel.UnreliableUnorderedChannel)
	require.Nil(t, receiverUnreliable.ReceiveMessage())

	require.NoError(t, receiver.ProcessDatagram(datagrams[len(datagrams)-1]))
	received := receiverUnreliable.ReceiveMessage()
	require.NotNil(t, received)
	require.Equal(t, big, received.BlockData())
}
