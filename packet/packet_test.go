package packet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"netcore/bitpack"
)

type testPacketA struct {
	value int32
}

func (p *testPacketA) Type() uint32 { return 0 }
func (p *testPacketA) Serialize(s *bitpack.Stream) error {
	return s.SerializeInteger(&p.value, -1000, 1000)
}

type testPacketB struct {
	text string
}

func (p *testPacketB) Type() uint32 { return 1 }
func (p *testPacketB) Serialize(s *bitpack.Stream) error {
	return s.SerializeString(&p.text, 64)
}

type testFactory struct{}

func (testFactory) NumTypes() int { return 2 }
func (testFactory) Create(t uint32) (Packet, error) {
	switch t {
	case 0:
		return &testPacketA{}, nil
	case 1:
		return &testPacketB{}, nil
	default:
		return nil, bitpack.ErrValueOutOfRange
	}
}

func TestWriteReadPacketRoundTrip(t *testing.T) {
	cfg := Config{ProtocolID: 0xCAFEBABE, PrefixBytes: 1}
	buf := make([]byte, 256)

	n, err := WritePacket(buf, &testPacketA{value: -42}, testFactory{}, cfg, nil)
	require.NoError(t, err)

	p, err := ReadPacket(buf, n*8, testFactory{}, cfg, nil)
	require.NoError(t, err)
	got, ok := p.(*testPacketA)
	require.True(t, ok)
	require.EqualValues(t, -42, got.value)
}

func TestReadPacketDetectsCorruption(t *testing.T) {
	cfg := Config{ProtocolID: 0xCAFEBABE}
	buf := make([]byte, 256)

	n, err := WritePacket(buf, &testPacketB{text: "hello"}, testFactory{}, cfg, nil)
	require.NoError(t, err)

	buf[n-1] ^= 0xFF
	_, err = ReadPacket(buf, n*8, testFactory{}, cfg, nil)
	require.Error(t, err)
}

func TestAggregatePacketRoundTrip(t *testing.T) {
	cfg := Config{ProtocolID: 1234}
	buf := make([]byte, 512)

	packets := []Packet{
		&testPacketA{value: 7},
		&testPacketB{text: "aggregate"},
		&testPacketA{value: -99},
	}
	n, err := WriteAggregatePacket(buf, packets, testFactory{}, cfg, nil)
	require.NoError(t, err)

	got, err := ReadAggregatePacket(buf, n*8, testFactory{}, cfg, nil, 16)
	require.NoError(t, err)
	require.Len(t, got, 3)

	a0, ok := got[0].(*testPacketA)
	require.True(t, ok)
	require.EqualValues(t, 7, a0.value)

	b1, ok := got[1].(*testPacketB)
	require.True(t, ok)
	require.Equal(t, "aggregate", b1.text)

	a2, ok := got[2].(*testPacketA)
	require.True(t, ok)
	require.EqualValues(t, -99, a2.value)
}

func TestAggregatePacketStopsAtMaxPackets(t *testing.T) {
	cfg := Config{ProtocolID: 1234}
	buf := make([]byte, 512)

	packets := []Packet{&testPacketA{value: 1}, &testPacketA{value: 2}, &testPacketA{value: 3}}
	n, err := WriteAggregatePacket(buf, packets, testFactory{}, cfg, nil)
	require.NoError(t, err)

	got, err := ReadAggregatePacket(buf, n*8, testFactory{}, cfg, nil, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
}
