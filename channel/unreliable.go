package channel

import (
	"time"

	"netcore/bitpack"
	"netcore/message"
)

// unreliableEntry is a ring slot holding one queued message; messages are
// dropped (released) rather than resent once they leave the send queue,
// acked or not.
type unreliableEntry struct {
	message *message.Message
	used    bool
}

// UnreliableUnorderedChannel delivers messages best-effort: no acks, no
// resend, no ordering guarantee across messages. Send and receive each
// use a plain ring buffer of fixed capacity rather than a sequence-indexed
// SequenceBuffer, since there's no reliable-delivery bookkeeping to key on
// a packet sequence number.
type UnreliableUnorderedChannel struct {
	index   int
	config  Config
	factory message.Factory

	sendQueue    []unreliableEntry
	sendHead     int
	sendTail     int
	sendCount    int

	receiveQueue []unreliableEntry
	receiveHead  int
	receiveTail  int
	receiveCount int

	errorLevel ErrorLevel
}

func NewUnreliableUnorderedChannel(index int, cfg Config, factory message.Factory) *UnreliableUnorderedChannel {
	return &UnreliableUnorderedChannel{
		index:        index,
		config:       cfg,
		factory:      factory,
		sendQueue:    make([]unreliableEntry, cfg.UnreliableSendQueueSize),
		receiveQueue: make([]unreliableEntry, cfg.UnreliableReceiveQueueSize),
	}
}

func (c *UnreliableUnorderedChannel) Index() int             { return c.index }
func (c *UnreliableUnorderedChannel) ErrorLevel() ErrorLevel { return c.errorLevel }

// SendMessage enqueues m, rejecting it with ErrSendQueueFull if the ring
// is already at capacity.
func (c *UnreliableUnorderedChannel) SendMessage(m *message.Message) error {
	if c.errorLevel != ErrorNone {
		m.Release()
		return ErrChannelErrored
	}
	if c.sendCount == len(c.sendQueue) {
		c.errorLevel = ErrorSendQueueFull
		m.Release()
		return ErrSendQueueFull
	}
	c.sendQueue[c.sendTail] = unreliableEntry{message: m, used: true}
	c.sendTail = (c.sendTail + 1) % len(c.sendQueue)
	c.sendCount++
	return nil
}

func (c *UnreliableUnorderedChannel) HasMessagesToSend() bool { return c.sendCount > 0 }

// ReceiveMessage pops the next delivered message, or nil if the receive
// queue is empty.
func (c *UnreliableUnorderedChannel) ReceiveMessage() *message.Message {
	if c.receiveCount == 0 {
		return nil
	}
	entry := c.receiveQueue[c.receiveHead]
	c.receiveQueue[c.receiveHead] = unreliableEntry{}
	c.receiveHead = (c.receiveHead + 1) % len(c.receiveQueue)
	c.receiveCount--
	return entry.message
}

// GetPacketData greedily drains the send queue under availableBits and
// MaxMessagesPerPacket, measuring each candidate message (plus its block
// bytes, if any) before committing it; messages that don't fit at all are
// dropped rather than retried, since there is no resend path.
func (c *UnreliableUnorderedChannel) GetPacketData(availableBits int) (PacketData, bool) {
	if !c.HasMessagesToSend() {
		return PacketData{}, false
	}
	if c.config.PacketBudget > 0 && availableBits > c.config.PacketBudget*8 {
		availableBits = c.config.PacketBudget * 8
	}

	usedBits := conservativeChannelHeaderBits
	var selected []*message.Message

	for c.sendCount > 0 && len(selected) < c.config.MaxMessagesPerPacket {
		entry := c.sendQueue[c.sendHead]

		ms := bitpack.NewMeasureStream()
		_ = entry.message.Serialize(ms)
		messageBits := conservativeMessageHeaderBits + ms.BitsProcessed()
		if entry.message.IsBlock() {
			blockLen := len(entry.message.BlockData())
			if blockLen > c.config.MaxBlockSize {
				c.dequeueSend()
				entry.message.Release()
				continue
			}
			messageBits += blockLen * 8
		}

		if usedBits+messageBits > availableBits {
			c.dequeueSend()
			entry.message.Release()
			continue
		}

		c.dequeueSend()
		usedBits += messageBits
		selected = append(selected, entry.message)
	}

	if len(selected) == 0 {
		return PacketData{}, false
	}
	return PacketData{ChannelIndex: c.index, Messages: selected}, true
}

func (c *UnreliableUnorderedChannel) dequeueSend() {
	c.sendQueue[c.sendHead] = unreliableEntry{}
	c.sendHead = (c.sendHead + 1) % len(c.sendQueue)
	c.sendCount--
}

// RecordSent is a no-op for the unreliable channel: there is nothing to
// track for an ack that will never come.
func (c *UnreliableUnorderedChannel) RecordSent(seq uint16, data PacketData) {}

// ProcessAck is a no-op: the unreliable channel never resends and never
// frees anything on ack, since it stops holding a message as soon as
// GetPacketData dequeues it.
func (c *UnreliableUnorderedChannel) ProcessAck(seq uint16) {}

// WritePacketData serializes a flat run of messages; a block message
// carries its block bytes inline, after a length prefix and a byte align.
func (c *UnreliableUnorderedChannel) WritePacketData(s *bitpack.Stream, data PacketData) error {
	count := int32(len(data.Messages))
	if err := s.SerializeInteger(&count, 1, int32(c.config.MaxMessagesPerPacket)); err != nil {
		return err
	}
	typeBits := int32(c.factory.NumTypes() - 1)
	for _, m := range data.Messages {
		mt := int32(m.Type)
		if err := s.SerializeInteger(&mt, 0, typeBits); err != nil {
			return err
		}
		isBlock := m.IsBlock()
		if err := s.SerializeBool(&isBlock); err != nil {
			return err
		}
		if isBlock {
			blockData := m.BlockData()
			length := int32(len(blockData))
			if err := s.SerializeInteger(&length, 0, int32(c.config.MaxBlockSize)); err != nil {
				return err
			}
			if err := s.SerializeAlign(); err != nil {
				return err
			}
			buf := blockData
			if s.IsReading() {
				buf = make([]byte, length)
			}
			if err := s.SerializeBytes(buf); err != nil {
				return err
			}
			if s.IsReading() {
				m.AttachBlock(buf)
			}
		}
		if err := m.Serialize(s); err != nil {
			return err
		}
	}
	return nil
}

// ReadPacketData is the mirror of WritePacketData. Every reconstructed
// message's id is later overwritten by ProcessPacketData to the
// containing packet's sequence number, per the unordered channel's
// delivery-order contract.
func (c *UnreliableUnorderedChannel) ReadPacketData(s *bitpack.Stream) (PacketData, error) {
	var count int32
	if err := s.SerializeInteger(&count, 1, int32(c.config.MaxMessagesPerPacket)); err != nil {
		return PacketData{}, err
	}
	typeBits := int32(c.factory.NumTypes() - 1)

	data := PacketData{ChannelIndex: c.index, Messages: make([]*message.Message, 0, count)}
	for i := int32(0); i < count; i++ {
		var mt int32
		if err := s.SerializeInteger(&mt, 0, typeBits); err != nil {
			return PacketData{}, err
		}
		payload, err := c.factory.Create(uint32(mt))
		if err != nil {
			data.MessageFailedToSerialize = true
			return data, nil
		}

		var isBlock bool
		if err := s.SerializeBool(&isBlock); err != nil {
			return PacketData{}, err
		}

		var m *message.Message
		if isBlock {
			var length int32
			if err := s.SerializeInteger(&length, 0, int32(c.config.MaxBlockSize)); err != nil {
				return PacketData{}, err
			}
			if err := s.SerializeAlign(); err != nil {
				return PacketData{}, err
			}
			buf := make([]byte, length)
			if err := s.SerializeBytes(buf); err != nil {
				return PacketData{}, err
			}
			m = message.NewBlockMessage(uint32(mt), payload)
			m.AttachBlock(buf)
		} else {
			m = message.NewMessage(uint32(mt), payload)
		}

		if err := payload.Serialize(s); err != nil {
			data.MessageFailedToSerialize = true
			return data, nil
		}
		data.Messages = append(data.Messages, m)
	}
	return data, nil
}

// ProcessPacketData assigns every delivered message the containing
// packet's sequence as its id, then enqueues it if there's room;
// otherwise the message is dropped.
func (c *UnreliableUnorderedChannel) ProcessPacketData(data PacketData, seq uint16) error {
	if data.MessageFailedToSerialize {
		c.errorLevel = ErrorFailedToSerialize
		return ErrFailedToSerialize
	}
	for _, m := range data.Messages {
		m.ID = seq
		if c.receiveCount == len(c.receiveQueue) {
			m.Release()
			continue
		}
		c.receiveQueue[c.receiveTail] = unreliableEntry{message: m, used: true}
		c.receiveTail = (c.receiveTail + 1) % len(c.receiveQueue)
		c.receiveCount++
	}
	return nil
}

func (c *UnreliableUnorderedChannel) AdvanceTime(now time.Time) {}
