package connection

import (
	"encoding/binary"
	"time"

	"netcore/bitpack"
	"netcore/channel"
	"netcore/fragment"
	"netcore/metrics"
	"netcore/pkg/logger"
	"netcore/transport"
)

const (
	conservativePacketHeaderBits  = 16 + 1 + 16 + 32 + 8 // sequence + hasAck + ack + ackBits + entry count
	conservativeChannelHeaderBits = 8 + 8                 // channel index + blockMessage flag, conservatively
)

// datagramKind is a single undescribed byte Connection prefixes onto
// every outgoing datagram, letting the receive side cheaply tell a
// reassembly fragment apart from a complete connection packet without
// parsing ambiguity (both would otherwise CRC-validate successfully
// under either layout at a low but non-zero collision rate).
type datagramKind byte

const (
	datagramConnectionPacket datagramKind = 0
	datagramFragment         datagramKind = 1
)

// Connection owns a fixed set of channels and composes whatever they have
// to send into one sequence-numbered packet per GeneratePacket call,
// fragmenting the result when it exceeds FragmentPacketsAbove and
// reassembling incoming fragments through its own reassembly window.
type Connection struct {
	config     Config
	channels   []Channel
	ack        *AckSystem
	reassembly *fragment.ReassemblyBuffer
	metrics    *metrics.Metrics

	sendSequence uint16
	errorLevel   ErrorLevel
	now          time.Time
}

// NewConnection wires cfg's channels together. m may be nil if the caller
// doesn't want metrics; every Metrics method tolerates a nil receiver.
func NewConnection(cfg Config, channels []Channel, m *metrics.Metrics) *Connection {
	return &Connection{
		config:     cfg,
		channels:   channels,
		ack:        NewAckSystem(cfg.AckedPacketsBufferSize, cfg.ReceivedPacketsBufferSize),
		reassembly: fragment.NewReassemblyBuffer(cfg.PacketReassemblyBufferSize),
		metrics:    m,
	}
}

func (c *Connection) ErrorLevel() ErrorLevel { return c.errorLevel }

func (c *Connection) AdvanceTime(now time.Time) {
	c.now = now
	for _, ch := range c.channels {
		ch.AdvanceTime(now)
		if ch.ErrorLevel() != 0 && c.errorLevel == ErrorNone {
			c.errorLevel = ErrorChannel
			c.metrics.ConnectionError("channel")
		}
	}
}

// GeneratePacket composes every channel's pending contribution into one
// packet body, seals it, and returns the wire-ready datagrams: a single
// element unless the body exceeds FragmentPacketsAbove, in which case it
// is split across several fragment datagrams.
func (c *Connection) GeneratePacket() ([][]byte, error) {
	seq := c.sendSequence
	c.sendSequence++

	body, contributed, err := c.writeBody(seq)
	if err != nil {
		return nil, err
	}

	c.ack.PacketSent(seq, c.now)
	for _, cc := range contributed {
		cc.channel.RecordSent(seq, cc.data)
	}

	if len(body) <= c.config.FragmentPacketsAbove {
		return [][]byte{prependKind(datagramConnectionPacket, body)}, nil
	}

	c.metrics.PacketFragmented()
	fragments := fragment.Split(body)
	datagrams := make([][]byte, len(fragments))
	for i, f := range fragments {
		buf := make([]byte, fragment.MaxFragmentSize+64)
		n, err := fragment.WritePacket(buf, c.config.ProtocolID, 1, seq, f)
		if err != nil {
			return nil, err
		}
		datagrams[i] = prependKind(datagramFragment, buf[:n])
	}
	return datagrams, nil
}

func prependKind(kind datagramKind, body []byte) []byte {
	out := make([]byte, len(body)+1)
	out[0] = byte(kind)
	copy(out[1:], body)
	return out
}

func (c *Connection) writeBody(seq uint16) ([]byte, []channelEntry, error) {
	header := c.ack.Header(seq)

	availableBits := c.config.MaxPacketSize*8 - conservativePacketHeaderBits

	entries := make([]channelEntry, 0, len(c.channels))
	for _, ch := range c.channels {
		if !ch.HasMessagesToSend() {
			continue
		}
		data, ok := ch.GetPacketData(availableBits - conservativeChannelHeaderBits)
		if !ok {
			continue
		}
		entries = append(entries, channelEntry{channel: ch, data: data})

		ms := bitpack.NewMeasureStream()
		_ = ch.WritePacketData(ms, data)
		availableBits -= conservativeChannelHeaderBits + ms.BitsProcessed()
		if availableBits <= 0 {
			break
		}
	}

	buf := make([]byte, c.config.MaxPacketSize+256)
	s := bitpack.NewWriteStream(buf)

	var crcPlaceholder uint32
	if err := s.SerializeBits(&crcPlaceholder, 32); err != nil {
		return nil, nil, err
	}
	if err := header.Serialize(s); err != nil {
		return nil, nil, err
	}

	count := int32(len(entries))
	if err := s.SerializeInteger(&count, 0, int32(len(c.channels))); err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		idx := int32(e.channel.Index())
		if err := s.SerializeInteger(&idx, 0, int32(len(c.channels)-1)); err != nil {
			return nil, nil, err
		}
		if err := e.channel.WritePacketData(s, e.data); err != nil {
			return nil, nil, err
		}
	}

	if err := s.SerializeCheck(); err != nil {
		return nil, nil, err
	}
	if err := s.SerializeAlign(); err != nil {
		return nil, nil, err
	}
	s.Flush()

	written := s.BytesProcessed()
	out := buf[:written]
	crc := bitpack.CalculateCRC32(c.config.ProtocolID, out)
	binary.LittleEndian.PutUint32(out, crc)

	return out, entries, nil
}

type channelEntry struct {
	channel Channel
	data    channel.PacketData
}

// ProcessDatagram is the receive-side mirror of GeneratePacket: it
// demultiplexes a raw datagram into either a fragment (fed into the
// reassembly window) or a complete packet body (processed immediately),
// reassembling and processing once every fragment of a split packet has
// arrived.
func (c *Connection) ProcessDatagram(datagram []byte) error {
	if len(datagram) == 0 {
		return bitpack.ErrStreamCorrupt
	}
	kind := datagramKind(datagram[0])
	body := datagram[1:]

	if kind == datagramFragment {
		seq, f, err := fragment.ReadPacket(body, len(body)*8, c.config.ProtocolID, 1)
		if err != nil {
			return err
		}
		reassembled, ready := c.reassembly.ProcessFragment(seq, f.FragmentID, f.NumFragments, len(f.Data), f.Data)
		if !ready {
			return nil
		}
		c.metrics.PacketReassembled()
		return c.processBody(reassembled)
	}
	return c.processBody(body)
}

func (c *Connection) processBody(body []byte) error {
	numBytes := len(body)
	if numBytes < 4 {
		c.errorLevel = ErrorReadPacketFailed
		c.metrics.PacketRejected("short_body")
		logger.Debug("connection: trace %s rejected, body too short (%d bytes)", transport.NewTraceID(), numBytes)
		return ErrReadPacketFailed
	}

	storedCRC := binary.LittleEndian.Uint32(body)
	zeroed := make([]byte, numBytes)
	copy(zeroed, body)
	binary.LittleEndian.PutUint32(zeroed, 0)
	if bitpack.CalculateCRC32(c.config.ProtocolID, zeroed) != storedCRC {
		c.errorLevel = ErrorReadPacketFailed
		c.metrics.PacketRejected("crc_mismatch")
		logger.Debug("connection: trace %s rejected, CRC mismatch", transport.NewTraceID())
		return ErrReadPacketFailed
	}

	s := bitpack.NewReadStream(body, numBytes*8)
	var crcField uint32
	if err := s.SerializeBits(&crcField, 32); err != nil {
		c.errorLevel = ErrorReadPacketFailed
		return ErrReadPacketFailed
	}

	var header Header
	if err := header.Serialize(s); err != nil {
		c.errorLevel = ErrorReadPacketFailed
		return ErrReadPacketFailed
	}
	c.ack.PacketReceived(header.Sequence)
	for _, seq := range c.ack.ProcessHeader(header) {
		for _, ch := range c.channels {
			ch.ProcessAck(seq)
		}
	}

	var count int32
	if err := s.SerializeInteger(&count, 0, int32(len(c.channels))); err != nil {
		c.errorLevel = ErrorReadPacketFailed
		return ErrReadPacketFailed
	}
	for i := int32(0); i < count; i++ {
		var idx int32
		if err := s.SerializeInteger(&idx, 0, int32(len(c.channels)-1)); err != nil {
			c.errorLevel = ErrorReadPacketFailed
			return ErrReadPacketFailed
		}
		if int(idx) < 0 || int(idx) >= len(c.channels) {
			c.errorLevel = ErrorReadPacketFailed
			return ErrUnknownChannel
		}
		ch := c.channels[idx]
		data, err := ch.ReadPacketData(s)
		if err != nil {
			c.errorLevel = ErrorReadPacketFailed
			return ErrReadPacketFailed
		}
		if err := ch.ProcessPacketData(data, header.Sequence); err != nil {
			c.errorLevel = ErrorChannel
		}
	}

	if err := s.SerializeCheck(); err != nil {
		c.errorLevel = ErrorReadPacketFailed
		return ErrReadPacketFailed
	}
	return nil
}
