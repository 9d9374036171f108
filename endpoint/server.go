// Package endpoint implements the connection-request/challenge/response
// handshake, and the Server/Client state machines that drive it before
// handing traffic off to a connection.Connection.
package endpoint

import (
	"time"

	"github.com/google/uuid"

	"netcore/connection"
	"netcore/metrics"
	"netcore/packet"
	"netcore/pkg/logger"
	"netcore/transport"
)

type challengeEntry struct {
	addr          transport.Addr
	clientSalt    uint64
	challengeSalt uint64
	createdAt     time.Time
	lastSendTime  time.Time
}

// slot is one connected (or connecting) client, indexed by position in
// Server.slots; nil means free.
type slot struct {
	index         int
	traceID       string
	addr          transport.Addr
	clientSalt    uint64
	challengeSalt uint64
	conn          *connection.Connection
	lastRecvTime  time.Time
	lastSendTime  time.Time
}

// Server accepts CONNECTION_REQUESTs over socket, runs the
// challenge/response handshake, and hands each connected slot a
// connection.Connection built from cfg.NewChannels.
type Server struct {
	cfg        Config
	socket     transport.Socket
	metrics    *metrics.Metrics
	framingCfg packet.Config

	slots      []*slot
	challenges map[uint64]*challengeEntry

	now time.Time
}

// NewServer binds no socket itself — the caller supplies one (a real
// transport.UDPSocket, or a simulator.Simulator wrapping one) so tests
// can substitute an in-memory Socket.
func NewServer(cfg Config, socket transport.Socket, m *metrics.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		socket:     socket,
		metrics:    m,
		framingCfg: packet.Config{ProtocolID: cfg.ProtocolID},
		slots:      make([]*slot, cfg.MaxClients),
		challenges: make(map[uint64]*challengeEntry),
	}
}

// ConnectedClients reports how many slots currently hold a connected client.
func (s *Server) ConnectedClients() int {
	n := 0
	for _, sl := range s.slots {
		if sl != nil {
			n++
		}
	}
	return n
}

// Connection returns the established connection.Connection for slot
// index, or nil if that slot isn't connected.
func (s *Server) Connection(index int) *connection.Connection {
	if index < 0 || index >= len(s.slots) || s.slots[index] == nil {
		return nil
	}
	return s.slots[index].conn
}

// Tick drains every ready datagram, advances each connected slot's
// connection, and evicts slots that have gone quiet past KeepAliveTimeOut.
func (s *Server) Tick(now time.Time) error {
	s.now = now

	for {
		from, data, ok, err := s.socket.Recv()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.handleDatagram(from, data)
	}

	s.expireChallenges(now)

	for _, sl := range s.slots {
		if sl == nil {
			continue
		}
		if now.Sub(sl.lastRecvTime) > s.cfg.KeepAliveTimeOut {
			logger.Warn("endpoint: slot %d (%s) timed out, disconnecting", sl.index, sl.addr)
			s.disconnectSlot(sl)
			continue
		}

		sl.conn.AdvanceTime(now)
		if now.Sub(sl.lastSendTime) >= s.cfg.ConnectionKeepAliveSendRate {
			s.flushSlot(sl)
		}
	}
	return nil
}

func (s *Server) flushSlot(sl *slot) {
	datagrams, err := sl.conn.GeneratePacket()
	if err != nil {
		logger.Error("endpoint: slot %d generate packet: %v", sl.index, err)
		return
	}
	sl.lastSendTime = s.now
	for _, d := range datagrams {
		_ = s.socket.Send(sl.addr, prependFrame(frameConnection, d))
	}
}

func (s *Server) handleDatagram(from transport.Addr, data []byte) {
	if len(data) == 0 {
		return
	}
	kind := frameKind(data[0])
	body := data[1:]

	if kind == frameConnection {
		sl := s.findSlotByAddr(from)
		if sl == nil {
			return
		}
		sl.lastRecvTime = s.now
		if err := sl.conn.ProcessDatagram(body); err != nil {
			s.metrics.PacketRejected("endpoint_connection")
		}
		return
	}

	p, err := packet.ReadPacket(body, len(body)*8, handshakeFactory{}, s.framingCfg, nil)
	if err != nil {
		s.metrics.PacketRejected("endpoint_handshake")
		return
	}

	switch req := p.(type) {
	case *requestPacket:
		s.handleRequest(from, req)
	case *responsePacket:
		s.handleResponse(from, req)
	case *disconnectPacket:
		s.handleDisconnect(from, req)
	}
}

func (s *Server) handleRequest(from transport.Addr, req *requestPacket) {
	if sl := s.findSlotByAddrSalt(from, req.ClientSalt); sl != nil {
		s.sendDenied(from, req.ClientSalt, DenyReasonAlreadyConnected)
		return
	}

	if !s.hasFreeSlot() {
		s.sendDenied(from, req.ClientSalt, DenyReasonServerFull)
		return
	}

	key := challengeKey(from, req.ClientSalt, 0)
	entry, ok := s.challenges[key]
	if !ok {
		entry = &challengeEntry{
			addr:          from,
			clientSalt:    req.ClientSalt,
			challengeSalt: newSalt(),
			createdAt:     s.now,
		}
		s.challenges[key] = entry
	}

	if s.now.Sub(entry.lastSendTime) >= s.cfg.ChallengeSendRate {
		entry.lastSendTime = s.now
		s.sendHandshake(from, &challengePacket{ClientSalt: req.ClientSalt, ChallengeSalt: entry.challengeSalt})
	}
}

func (s *Server) handleResponse(from transport.Addr, resp *responsePacket) {
	if sl := s.findSlotByAddrSalt(from, resp.ClientSalt); sl != nil {
		sl.lastRecvTime = s.now
		if s.now.Sub(sl.lastSendTime) >= s.cfg.ConnectionKeepAliveSendRate {
			s.sendHandshake(from, &keepAlivePacket{ClientSalt: sl.clientSalt, ChallengeSalt: sl.challengeSalt})
			sl.lastSendTime = s.now
		}
		return
	}

	key := challengeKey(from, resp.ClientSalt, 0)
	entry, ok := s.challenges[key]
	if !ok || entry.challengeSalt != resp.ChallengeSalt {
		return
	}

	index := s.freeSlotIndex()
	if index < 0 {
		s.sendDenied(from, resp.ClientSalt, DenyReasonServerFull)
		return
	}

	sl := &slot{
		index:         index,
		traceID:       uuid.NewString(),
		addr:          from,
		clientSalt:    resp.ClientSalt,
		challengeSalt: entry.challengeSalt,
		conn:          connection.NewConnection(s.cfg.ConnectionConfig, s.cfg.NewChannels(), s.metrics),
		lastRecvTime:  s.now,
		lastSendTime:  s.now,
	}
	s.slots[index] = sl
	delete(s.challenges, key)

	logger.Success("endpoint: slot %d connected from %s (trace %s)", index, from, sl.traceID)
	s.sendHandshake(from, &keepAlivePacket{ClientSalt: sl.clientSalt, ChallengeSalt: sl.challengeSalt})
}

func (s *Server) handleDisconnect(from transport.Addr, req *disconnectPacket) {
	if sl := s.findSlotByAddrSalt(from, req.ClientSalt); sl != nil {
		s.disconnectSlot(sl)
	}
}

func (s *Server) disconnectSlot(sl *slot) {
	s.slots[sl.index] = nil
}

func (s *Server) sendDenied(to transport.Addr, clientSalt uint64, reason DenyReason) {
	s.sendHandshake(to, &deniedPacket{ClientSalt: clientSalt, Reason: reason})
}

func (s *Server) sendHandshake(to transport.Addr, p packet.Packet) {
	buf := make([]byte, requestPadBytes+64)
	n, err := packet.WritePacket(buf, p, handshakeFactory{}, s.framingCfg, nil)
	if err != nil {
		logger.Error("endpoint: write handshake packet: %v", err)
		return
	}
	_ = s.socket.Send(to, prependFrame(frameHandshake, buf[:n]))
}

func (s *Server) findSlotByAddr(addr transport.Addr) *slot {
	for _, sl := range s.slots {
		if sl != nil && addrEqual(sl.addr, addr) {
			return sl
		}
	}
	return nil
}

func (s *Server) findSlotByAddrSalt(addr transport.Addr, clientSalt uint64) *slot {
	for _, sl := range s.slots {
		if sl != nil && addrEqual(sl.addr, addr) && sl.clientSalt == clientSalt {
			return sl
		}
	}
	return nil
}

func (s *Server) hasFreeSlot() bool { return s.freeSlotIndex() >= 0 }

func (s *Server) freeSlotIndex() int {
	for i, sl := range s.slots {
		if sl == nil {
			return i
		}
	}
	return -1
}

func (s *Server) expireChallenges(now time.Time) {
	for key, entry := range s.challenges {
		if now.Sub(entry.createdAt) > s.cfg.ChallengeTimeOut {
			delete(s.challenges, key)
		}
	}
}
