package endpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"netcore/bitpack"
	"netcore/message"
	"netcore/transport"
)

// fakeNetwork is an in-memory rendezvous for netSocket, letting handshake
// tests exercise a server talking to several client addresses without a
// real UDP loopback.
type fakeNetwork struct {
	sockets map[int]*netSocket
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{sockets: make(map[int]*netSocket)}
}

func (n *fakeNetwork) socket(port int) *netSocket {
	s := &netSocket{network: n, local: transport.Addr{Port: port}}
	n.sockets[port] = s
	return s
}

type netSocket struct {
	network *fakeNetwork
	local   transport.Addr
	inbox   []struct {
		from  transport.Addr
		bytes []byte
	}
}

func (s *netSocket) Send(addr transport.Addr, bytes []byte) error {
	dest, ok := s.network.sockets[addr.Port]
	if !ok {
		return nil
	}
	buf := make([]byte, len(bytes))
	copy(buf, bytes)
	dest.inbox = append(dest.inbox, struct {
		from  transport.Addr
		bytes []byte
	}{s.local, buf})
	return nil
}

func (s *netSocket) Recv() (transport.Addr, []byte, bool, error) {
	if len(s.inbox) == 0 {
		return transport.Addr{}, nil, false, nil
	}
	next := s.inbox[0]
	s.inbox = s.inbox[1:]
	return next.from, next.bytes, true, nil
}

func (s *netSocket) Close() error              { return nil }
func (s *netSocket) LocalAddr() transport.Addr { return s.local }

type endpointTestPayload struct{ Value uint32 }

func (v *endpointTestPayload) Serialize(s *bitpack.Stream) error {
	return s.SerializeBits(&v.Value, 32)
}

type endpointTestFactory struct{}

func (endpointTestFactory) NumTypes() int { return 1 }
func (endpointTestFactory) Create(uint32) (message.Payload, error) {
	return &endpointTestPayload{}, nil
}

func testConfig(protocolID uint32, maxClients int) Config {
	return DefaultConfig(protocolID, maxClients, endpointTestFactory{}, 1)
}

func TestHandshakeConnectsSingleClient(t *testing.T) {
	net := newFakeNetwork()
	serverSocket := net.socket(40000)
	clientSocket := net.socket(40001)

	server := NewServer(testConfig(0xABCD, 4), serverSocket, nil)
	client := NewClient(testConfig(0xABCD, 4), clientSocket, nil)

	now := time.Now()
	client.Connect(transport.Addr{Port: 40000}, now)

	for i := 0; i < 20 && client.State() != StateConnected; i++ {
		now = now.Add(150 * time.Millisecond)
		require.NoError(t, server.Tick(now))
		require.NoError(t, client.Tick(now))
	}

	require.Equal(t, StateConnected, client.State())
	require.Equal(t, 1, server.ConnectedClients())
	require.NotNil(t, client.Connection())
	require.NotNil(t, server.Connection(0))
}

func TestHandshakeDeniesWhenServerFull(t *testing.T) {
	net := newFakeNetwork()
	serverSocket := net.socket(40010)
	clientASocket := net.socket(40011)
	clientBSocket := net.socket(40012)

	server := NewServer(testConfig(0xABCD, 1), serverSocket, nil)
	clientA := NewClient(testConfig(0xABCD, 1), clientASocket, nil)
	clientB := NewClient(testConfig(0xABCD, 1), clientBSocket, nil)

	now := time.Now()
	clientA.Connect(transport.Addr{Port: 40010}, now)

	for i := 0; i < 20 && clientA.State() != StateConnected; i++ {
		now = now.Add(150 * time.Millisecond)
		require.NoError(t, server.Tick(now))
		require.NoError(t, clientA.Tick(now))
	}
	require.Equal(t, StateConnected, clientA.State())

	clientB.Connect(transport.Addr{Port: 40010}, now)
	for i := 0; i < 20 && clientB.State() == StateSendingConnectionRequest; i++ {
		now = now.Add(150 * time.Millisecond)
		require.NoError(t, server.Tick(now))
		require.NoError(t, clientB.Tick(now))
	}

	require.Equal(t, StateConnectionDeniedFull, clientB.State())
}

func TestHandshakeTimesOutWithNoServer(t *testing.T) {
	net := newFakeNetwork()
	clientSocket := net.socket(40021)
	cfg := testConfig(0xABCD, 4)
	cfg.ConnectionRequestTimeOut = 500 * time.Millisecond

	client := NewClient(cfg, clientSocket, nil)
	now := time.Now()
	client.Connect(transport.Addr{Port: 40020}, now)

	for i := 0; i < 10 && client.State() == StateSendingConnectionRequest; i++ {
		now = now.Add(100 * time.Millisecond)
		require.NoError(t, client.Tick(now))
	}

	require.Equal(t, StateConnectionRequestTimedOut, client.State())
}

func TestSlotEvictedAfterKeepAliveTimeout(t *testing.T) {
	net := newFakeNetwork()
	serverSocket := net.socket(40030)
	clientSocket := net.socket(40031)

	cfg := testConfig(0xABCD, 4)
	cfg.KeepAliveTimeOut = 300 * time.Millisecond
	server := NewServer(cfg, serverSocket, nil)
	client := NewClient(cfg, clientSocket, nil)

	now := time.Now()
	client.Connect(transport.Addr{Port: 40030}, now)
	for i := 0; i < 20 && client.State() != StateConnected; i++ {
		now = now.Add(150 * time.Millisecond)
		require.NoError(t, server.Tick(now))
		require.NoError(t, client.Tick(now))
	}
	require.Equal(t, 1, server.ConnectedClients())

	// Drain the client's last datagram at the time it was sent, so the
	// server sees no traffic during the following second.
	require.NoError(t, server.Tick(now))

	now = now.Add(time.Second)
	require.NoError(t, server.Tick(now))
	require.Equal(t, 0, server.ConnectedClients())
}
