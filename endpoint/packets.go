package endpoint

import (
	"errors"

	"netcore/bitpack"
	"netcore/packet"
)

var errUnknownHandshakePacketType = errors.New("endpoint: unknown handshake packet type")

// Handshake packet types, range-coded over numHandshakePacketTypes by
// packet.WritePacket/ReadPacket. This is a separate type space from the
// connection layer's own datagramKind byte (see connection.datagramKind):
// handshake packets and connection-carried datagrams are demultiplexed
// one level up, by the outer frame kind in frame.go, before either
// factory ever sees the bytes.
const (
	packetConnectionRequest uint32 = iota
	packetConnectionDenied
	packetConnectionChallenge
	packetConnectionResponse
	packetConnectionKeepAlive
	packetConnectionDisconnect
	numHandshakePacketTypes
)

// requestPadBytes forces CONNECTION_REQUEST to be the largest packet in
// the handshake, so a reflected DENIED/CHALLENGE response can never be
// used to amplify a spoofed request into a bigger reply.
const requestPadBytes = 256

// DenyReason is why a server refused a CONNECTION_REQUEST or
// CONNECTION_RESPONSE.
type DenyReason uint32

const (
	DenyReasonServerFull DenyReason = iota
	DenyReasonAlreadyConnected
)

func (r DenyReason) String() string {
	if r == DenyReasonAlreadyConnected {
		return "already_connected"
	}
	return "server_full"
}

type requestPacket struct {
	ClientSalt uint64
}

func (p *requestPacket) Type() uint32 { return packetConnectionRequest }
func (p *requestPacket) Serialize(s *bitpack.Stream) error {
	if err := s.SerializeUint64(&p.ClientSalt); err != nil {
		return err
	}
	pad := make([]byte, requestPadBytes)
	return s.SerializeBytes(pad)
}

type deniedPacket struct {
	ClientSalt uint64
	Reason     DenyReason
}

func (p *deniedPacket) Type() uint32 { return packetConnectionDenied }
func (p *deniedPacket) Serialize(s *bitpack.Stream) error {
	if err := s.SerializeUint64(&p.ClientSalt); err != nil {
		return err
	}
	reason := uint32(p.Reason)
	if err := s.SerializeBits(&reason, 32); err != nil {
		return err
	}
	if s.IsReading() {
		p.Reason = DenyReason(reason)
	}
	return nil
}

type challengePacket struct {
	ClientSalt    uint64
	ChallengeSalt uint64
}

func (p *challengePacket) Type() uint32 { return packetConnectionChallenge }
func (p *challengePacket) Serialize(s *bitpack.Stream) error {
	if err := s.SerializeUint64(&p.ClientSalt); err != nil {
		return err
	}
	return s.SerializeUint64(&p.ChallengeSalt)
}

type responsePacket struct {
	ClientSalt    uint64
	ChallengeSalt uint64
}

func (p *responsePacket) Type() uint32 { return packetConnectionResponse }
func (p *responsePacket) Serialize(s *bitpack.Stream) error {
	if err := s.SerializeUint64(&p.ClientSalt); err != nil {
		return err
	}
	return s.SerializeUint64(&p.ChallengeSalt)
}

type keepAlivePacket struct {
	ClientSalt    uint64
	ChallengeSalt uint64
}

func (p *keepAlivePacket) Type() uint32 { return packetConnectionKeepAlive }
func (p *keepAlivePacket) Serialize(s *bitpack.Stream) error {
	if err := s.SerializeUint64(&p.ClientSalt); err != nil {
		return err
	}
	return s.SerializeUint64(&p.ChallengeSalt)
}

type disconnectPacket struct {
	ClientSalt    uint64
	ChallengeSalt uint64
}

func (p *disconnectPacket) Type() uint32 { return packetConnectionDisconnect }
func (p *disconnectPacket) Serialize(s *bitpack.Stream) error {
	if err := s.SerializeUint64(&p.ClientSalt); err != nil {
		return err
	}
	return s.SerializeUint64(&p.ChallengeSalt)
}

// handshakeFactory is the packet.Factory for the six handshake packet
// types, shared by Server and Client.
type handshakeFactory struct{}

func (handshakeFactory) NumTypes() int { return int(numHandshakePacketTypes) }

func (handshakeFactory) Create(t uint32) (packet.Packet, error) {
	switch t {
	case packetConnectionRequest:
		return &requestPacket{}, nil
	case packetConnectionDenied:
		return &deniedPacket{}, nil
	case packetConnectionChallenge:
		return &challengePacket{}, nil
	case packetConnectionResponse:
		return &responsePacket{}, nil
	case packetConnectionKeepAlive:
		return &keepAlivePacket{}, nil
	case packetConnectionDisconnect:
		return &disconnectPacket{}, nil
	default:
		return nil, errUnknownHandshakePacketType
	}
}
