package endpoint

import (
	"time"

	"netcore/connection"
	"netcore/metrics"
	"netcore/packet"
	"netcore/pkg/logger"
	"netcore/transport"
)

// ClientState is one state in the connect/challenge/response handshake
// state machine; once CONNECTED a Client drives its Connection directly.
type ClientState int

const (
	StateDisconnected ClientState = iota
	StateSendingConnectionRequest
	StateSendingChallengeResponse
	StateConnected
	StateConnectionRequestTimedOut
	StateChallengeResponseTimedOut
	StateKeepAliveTimedOut
	StateConnectionDeniedFull
	StateConnectionDeniedAlreadyConnected
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSendingConnectionRequest:
		return "sending_connection_request"
	case StateSendingChallengeResponse:
		return "sending_challenge_response"
	case StateConnected:
		return "connected"
	case StateConnectionRequestTimedOut:
		return "connection_request_timed_out"
	case StateChallengeResponseTimedOut:
		return "challenge_response_timed_out"
	case StateKeepAliveTimedOut:
		return "keep_alive_timed_out"
	case StateConnectionDeniedFull:
		return "connection_denied_full"
	case StateConnectionDeniedAlreadyConnected:
		return "connection_denied_already_connected"
	default:
		return "unknown"
	}
}

// IsTerminalFailure reports whether this state is one of the handshake's
// dead-end outcomes (timeout or denial) rather than a state that still
// progresses or a live connection.
func (s ClientState) IsTerminalFailure() bool {
	return s >= StateConnectionRequestTimedOut
}

// Client drives the handshake against one server address, then hands
// off to a connection.Connection once CONNECTED.
type Client struct {
	cfg        Config
	socket     transport.Socket
	metrics    *metrics.Metrics
	framingCfg packet.Config

	state ClientState
	addr  transport.Addr

	clientSalt    uint64
	challengeSalt uint64

	conn *connection.Connection

	now             time.Time
	stateEnteredAt  time.Time
	lastSendTime    time.Time
	lastRecvTime    time.Time
	clientSaltSetAt time.Time
}

func NewClient(cfg Config, socket transport.Socket, m *metrics.Metrics) *Client {
	return &Client{
		cfg:        cfg,
		socket:     socket,
		metrics:    m,
		framingCfg: packet.Config{ProtocolID: cfg.ProtocolID},
		state:      StateDisconnected,
	}
}

func (c *Client) State() ClientState { return c.state }

// Connection returns the established connection.Connection, or nil
// until the handshake reaches StateConnected.
func (c *Client) Connection() *connection.Connection { return c.conn }

// Connect begins the handshake against addr.
func (c *Client) Connect(addr transport.Addr, now time.Time) {
	c.addr = addr
	c.clientSalt = newSalt()
	c.setState(StateSendingConnectionRequest, now)
	c.clientSaltSetAt = now
}

func (c *Client) setState(state ClientState, now time.Time) {
	if c.state != state {
		logger.Info("endpoint: client %s -> %s", c.state, state)
	}
	c.state = state
	c.stateEnteredAt = now
	c.lastSendTime = time.Time{}
}

// Tick drains incoming datagrams, resends handshake packets at their
// configured rate, and promotes timeouts into terminal failure states.
func (c *Client) Tick(now time.Time) error {
	c.now = now

	for {
		from, data, ok, err := c.socket.Recv()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !addrEqual(from, c.addr) {
			continue
		}
		c.handleDatagram(data)
	}

	switch c.state {
	case StateSendingConnectionRequest:
		if now.Sub(c.clientSaltSetAt) >= c.cfg.ClientSaltTimeout {
			c.clientSalt = newSalt()
			c.clientSaltSetAt = now
		}
		if now.Sub(c.stateEnteredAt) >= c.cfg.ConnectionRequestTimeOut {
			c.setState(StateConnectionRequestTimedOut, now)
			return nil
		}
		if now.Sub(c.lastSendTime) >= c.cfg.ConnectionRequestSendRate {
			c.send(&requestPacket{ClientSalt: c.clientSalt})
		}
	case StateSendingChallengeResponse:
		if now.Sub(c.stateEnteredAt) >= c.cfg.ChallengeResponseTimeOut {
			c.setState(StateChallengeResponseTimedOut, now)
			return nil
		}
		if now.Sub(c.lastSendTime) >= c.cfg.ConnectionRequestSendRate {
			c.send(&responsePacket{ClientSalt: c.clientSalt, ChallengeSalt: c.challengeSalt})
		}
	case StateConnected:
		if now.Sub(c.lastRecvTime) >= c.cfg.KeepAliveTimeOut {
			c.setState(StateKeepAliveTimedOut, now)
			return nil
		}
		c.conn.AdvanceTime(now)
		if now.Sub(c.lastSendTime) >= c.cfg.ConnectionKeepAliveSendRate {
			c.flush()
		}
	}
	return nil
}

func (c *Client) flush() {
	datagrams, err := c.conn.GeneratePacket()
	if err != nil {
		logger.Error("endpoint: client generate packet: %v", err)
		return
	}
	c.lastSendTime = c.now
	for _, d := range datagrams {
		_ = c.socket.Send(c.addr, prependFrame(frameConnection, d))
	}
}

func (c *Client) handleDatagram(data []byte) {
	if len(data) == 0 {
		return
	}
	kind := frameKind(data[0])
	body := data[1:]

	if kind == frameConnection {
		if c.state != StateConnected {
			return
		}
		c.lastRecvTime = c.now
		if err := c.conn.ProcessDatagram(body); err != nil {
			c.metrics.PacketRejected("endpoint_connection")
		}
		return
	}

	p, err := packet.ReadPacket(body, len(body)*8, handshakeFactory{}, c.framingCfg, nil)
	if err != nil {
		c.metrics.PacketRejected("endpoint_handshake")
		return
	}

	switch resp := p.(type) {
	case *challengePacket:
		c.handleChallenge(resp)
	case *keepAlivePacket:
		c.handleKeepAlive(resp)
	case *deniedPacket:
		c.handleDenied(resp)
	}
}

func (c *Client) handleChallenge(p *challengePacket) {
	if c.state != StateSendingConnectionRequest || p.ClientSalt != c.clientSalt {
		return
	}
	c.challengeSalt = p.ChallengeSalt
	c.setState(StateSendingChallengeResponse, c.now)
	c.send(&responsePacket{ClientSalt: c.clientSalt, ChallengeSalt: c.challengeSalt})
}

func (c *Client) handleKeepAlive(p *keepAlivePacket) {
	if p.ClientSalt != c.clientSalt || p.ChallengeSalt != c.challengeSalt {
		return
	}
	c.lastRecvTime = c.now
	if c.state == StateSendingChallengeResponse {
		c.conn = connection.NewConnection(c.cfg.ConnectionConfig, c.cfg.NewChannels(), c.metrics)
		c.setState(StateConnected, c.now)
		logger.Success("endpoint: client connected to %s", c.addr)
	}
}

func (c *Client) handleDenied(p *deniedPacket) {
	if p.ClientSalt != c.clientSalt {
		return
	}
	if c.state != StateSendingConnectionRequest && c.state != StateSendingChallengeResponse {
		return
	}
	if p.Reason == DenyReasonAlreadyConnected {
		c.setState(StateConnectionDeniedAlreadyConnected, c.now)
	} else {
		c.setState(StateConnectionDeniedFull, c.now)
	}
}

func (c *Client) send(p packet.Packet) {
	buf := make([]byte, requestPadBytes+64)
	n, err := packet.WritePacket(buf, p, handshakeFactory{}, c.framingCfg, nil)
	if err != nil {
		logger.Error("endpoint: write handshake packet: %v", err)
		return
	}
	c.lastSendTime = c.now
	_ = c.socket.Send(c.addr, prependFrame(frameHandshake, buf[:n]))
}

// Disconnect sends CONNECTION_DISCONNECT and resets to StateDisconnected.
func (c *Client) Disconnect() {
	if c.state == StateConnected {
		c.send(&disconnectPacket{ClientSalt: c.clientSalt, ChallengeSalt: c.challengeSalt})
	}
	c.setState(StateDisconnected, c.now)
	c.conn = nil
}
