package channel

import (
	"time"

	"netcore/bitpack"
	"netcore/message"
	"netcore/seqbuf"
)

// conservativeChannelHeaderBits and conservativeMessageHeaderBits are
// deliberately generous bit-cost estimates used only to decide whether a
// candidate message still fits the packet's remaining budget; the actual
// bits a message costs on the wire are whatever SerializeSequenceRelative
// and the message's own Serialize produce, which is usually less.
const (
	conservativeChannelHeaderBits  = 8
	conservativeMessageHeaderBits  = 16
	conservativeFragmentHeaderBits = 16 + 8 + 8 + 16
	// giveUpThresholdBits is the remaining-budget floor (4 bytes) below
	// which the packing loop gives up on this packet entirely rather than
	// keep probing smaller messages that might still fit.
	giveUpThresholdBits = 32
)

type sendQueueEntry struct {
	message      *message.Message
	measuredBits int
	block        bool
	timeLastSent time.Time
}

type receiveQueueEntry struct {
	message *message.Message
}

type sentPacketEntry struct {
	timeSent        time.Time
	acked           bool
	block           bool
	messageIDs      []uint16
	blockMessageID  uint16
	blockFragmentID int
}

type sendBlockData struct {
	active            bool
	blockSize         int
	numFragments      int
	numAckedFragments int
	blockMessageID    uint16
	acked             *seqbuf.BitArray
	fragmentSendTime  []time.Time
}

type receiveBlockData struct {
	active               bool
	numFragments         int
	numReceivedFragments int
	messageID            uint16
	messageType          uint32
	blockSize            int
	received             *seqbuf.BitArray
	blockData            []byte
	blockMessage         *message.Message
}

// ReliableOrderedChannel delivers every message exactly once, in the
// order it was sent, using the owning connection's per-packet ack stream.
// At most one block message may be in flight per direction at a time,
// streamed as individually-acked fragments layered over the same ack
// stream rather than a separate wire exchange (contrast chunk.Sender,
// which is a standalone protocol with its own ack packets).
type ReliableOrderedChannel struct {
	index   int
	config  Config
	factory message.Factory
	now     time.Time

	sendMessageID          uint16
	receiveMessageID       uint16
	oldestUnackedMessageID uint16

	sendQueue    *seqbuf.SequenceBuffer[sendQueueEntry]
	receiveQueue *seqbuf.SequenceBuffer[receiveQueueEntry]
	sentPackets  *seqbuf.SequenceBuffer[sentPacketEntry]

	sendBlock    sendBlockData
	receiveBlock receiveBlockData

	errorLevel    ErrorLevel
	disableBlocks bool

	MessagesSent     uint64
	MessagesReceived uint64
	MessagesLate     uint64
}

func NewReliableOrderedChannel(index int, cfg Config, factory message.Factory) *ReliableOrderedChannel {
	return &ReliableOrderedChannel{
		index:        index,
		config:       cfg,
		factory:      factory,
		sendQueue:    seqbuf.NewSequenceBuffer[sendQueueEntry](cfg.MessageSendQueueSize),
		receiveQueue: seqbuf.NewSequenceBuffer[receiveQueueEntry](cfg.MessageReceiveQueueSize),
		sentPackets:  seqbuf.NewSequenceBuffer[sentPacketEntry](cfg.SentPacketBufferSize),
	}
}

func (c *ReliableOrderedChannel) Index() int             { return c.index }
func (c *ReliableOrderedChannel) ErrorLevel() ErrorLevel { return c.errorLevel }
func (c *ReliableOrderedChannel) DisableBlocks()         { c.disableBlocks = true }

// OldestUnackedMessageID exposes the monotonicity property directly for tests.
func (c *ReliableOrderedChannel) OldestUnackedMessageID() uint16 { return c.oldestUnackedMessageID }

func (c *ReliableOrderedChannel) HasMessagesToSend() bool {
	return c.oldestUnackedMessageID != c.sendMessageID
}

// SendMessage enqueues m for delivery, assigning it the next message id.
// Ownership of m (and its single reference) passes to the channel; the
// caller must not use m again after this returns without error.
func (c *ReliableOrderedChannel) SendMessage(m *message.Message) error {
	if c.errorLevel != ErrorNone {
		m.Release()
		return ErrChannelErrored
	}
	if m.IsBlock() && c.disableBlocks {
		c.errorLevel = ErrorBlocksDisabled
		m.Release()
		return ErrBlocksDisabled
	}
	if bitpack.SequenceDifference(c.sendMessageID, c.oldestUnackedMessageID) >= c.config.MessageSendQueueSize {
		c.errorLevel = ErrorSendQueueFull
		m.Release()
		return ErrSendQueueFull
	}

	entry := c.sendQueue.Insert(c.sendMessageID)
	if entry == nil {
		c.errorLevel = ErrorSendQueueFull
		m.Release()
		return ErrSendQueueFull
	}

	m.ID = c.sendMessageID
	entry.message = m
	entry.block = m.IsBlock()
	entry.timeLastSent = time.Time{}

	ms := bitpack.NewMeasureStream()
	_ = m.Serialize(ms)
	entry.measuredBits = ms.BitsProcessed()

	c.sendMessageID++
	c.MessagesSent++
	return nil
}

// ReceiveMessage returns the next message in sender order, or nil if it
// hasn't arrived yet.
func (c *ReliableOrderedChannel) ReceiveMessage() *message.Message {
	entry := c.receiveQueue.Find(c.receiveMessageID)
	if entry == nil {
		return nil
	}
	m := entry.message
	c.receiveQueue.Remove(c.receiveMessageID)
	c.receiveMessageID++
	c.MessagesReceived++
	return m
}

func (c *ReliableOrderedChannel) sendingBlockMessage() bool {
	entry := c.sendQueue.Find(c.oldestUnackedMessageID)
	return entry != nil && entry.block
}

// GetPacketData selects what this channel would contribute to the
// next outgoing packet, given availableBits left in the packet's
// budget. It does not mutate sent-packet bookkeeping; the caller records
// the selection via RecordSent once the packet is actually written.
func (c *ReliableOrderedChannel) GetPacketData(availableBits int) (PacketData, bool) {
	if !c.HasMessagesToSend() {
		return PacketData{}, false
	}
	if c.config.PacketBudget > 0 && availableBits > c.config.PacketBudget*8 {
		availableBits = c.config.PacketBudget * 8
	}
	if c.sendingBlockMessage() {
		return c.getFragmentToSend(availableBits)
	}
	return c.getMessagesToSend(availableBits)
}

func (c *ReliableOrderedChannel) getMessagesToSend(availableBits int) (PacketData, bool) {
	messageTypeBits := bitpack.BitsRequired(0, uint32(c.factory.NumTypes()-1))
	messageLimit := c.config.MessageSendQueueSize
	if c.config.MessageReceiveQueueSize < messageLimit {
		messageLimit = c.config.MessageReceiveQueueSize
	}

	usedBits := conservativeChannelHeaderBits
	giveUpCounter := 0
	var selected []*message.Message

	for i := 0; i < messageLimit && len(selected) < c.config.MaxMessagesPerPacket; i++ {
		if availableBits-usedBits < giveUpThresholdBits {
			break
		}
		if giveUpCounter > c.config.MessageSendQueueSize {
			break
		}

		id := c.oldestUnackedMessageID + uint16(i)
		entry := c.sendQueue.Find(id)
		if entry == nil {
			continue
		}
		if entry.block {
			break
		}
		if !entry.timeLastSent.IsZero() && c.now.Sub(entry.timeLastSent) < c.config.MessageResendTime {
			continue
		}

		messageBits := messageTypeBits + entry.measuredBits + conservativeMessageHeaderBits
		if usedBits+messageBits > availableBits {
			giveUpCounter++
			continue
		}

		usedBits += messageBits
		entry.message.AddRef()
		selected = append(selected, entry.message)
		entry.timeLastSent = c.now
	}

	if len(selected) == 0 {
		return PacketData{}, false
	}
	return PacketData{ChannelIndex: c.index, Messages: selected}, true
}

func (c *ReliableOrderedChannel) getFragmentToSend(availableBits int) (PacketData, bool) {
	if availableBits < conservativeFragmentHeaderBits {
		return PacketData{}, false
	}

	entry := c.sendQueue.Find(c.oldestUnackedMessageID)
	if entry == nil || !entry.block {
		return PacketData{}, false
	}
	m := entry.message

	if !c.sendBlock.active {
		blockData := m.BlockData()
		c.sendBlock.active = true
		c.sendBlock.blockSize = len(blockData)
		c.sendBlock.numFragments = (len(blockData) + c.config.BlockFragmentSize - 1) / c.config.BlockFragmentSize
		if c.sendBlock.numFragments == 0 {
			c.sendBlock.numFragments = 1
		}
		c.sendBlock.numAckedFragments = 0
		c.sendBlock.blockMessageID = c.oldestUnackedMessageID
		c.sendBlock.acked = seqbuf.NewBitArray(c.sendBlock.numFragments)
		c.sendBlock.fragmentSendTime = make([]time.Time, c.sendBlock.numFragments)
	}

	fragmentID := -1
	for i := 0; i < c.sendBlock.numFragments; i++ {
		if c.sendBlock.acked.GetBit(i) {
			continue
		}
		if !c.sendBlock.fragmentSendTime[i].IsZero() && c.now.Sub(c.sendBlock.fragmentSendTime[i]) < c.config.BlockFragmentResendTime {
			continue
		}
		fragmentID = i
		break
	}
	if fragmentID < 0 {
		return PacketData{}, false
	}

	blockData := m.BlockData()
	start := fragmentID * c.config.BlockFragmentSize
	end := start + c.config.BlockFragmentSize
	if end > len(blockData) {
		end = len(blockData)
	}

	c.sendBlock.fragmentSendTime[fragmentID] = c.now

	data := PacketData{
		ChannelIndex: c.index,
		BlockMessage: true,
		MessageID:    c.sendBlock.blockMessageID,
		FragmentID:   fragmentID,
		NumFragments: c.sendBlock.numFragments,
		FragmentData: append([]byte(nil), blockData[start:end]...),
	}
	if fragmentID == 0 {
		data.BlockPayload = m.GetPayload()
		data.MessageType = m.Type
	}
	return data, true
}

// RecordSent logs what this channel contributed to outgoing packet seq,
// consulted later by ProcessAck.
func (c *ReliableOrderedChannel) RecordSent(seq uint16, data PacketData) {
	entry := c.sentPackets.Insert(seq)
	if entry == nil {
		return
	}
	entry.timeSent = c.now
	entry.block = data.BlockMessage
	if data.BlockMessage {
		entry.blockMessageID = data.MessageID
		entry.blockFragmentID = data.FragmentID
		return
	}
	entry.messageIDs = make([]uint16, len(data.Messages))
	for i, m := range data.Messages {
		entry.messageIDs[i] = m.ID
	}
}

// WritePacketData serializes data onto the wire: a message-id/type/payload
// run for the regular path, or the fragment header plus bytes (and,
// on fragment 0, the block's envelope payload) for the block path.
func (c *ReliableOrderedChannel) WritePacketData(s *bitpack.Stream, data PacketData) error {
	blockFlag := data.BlockMessage
	if err := s.SerializeBool(&blockFlag); err != nil {
		return err
	}
	if blockFlag {
		return c.writeFragment(s, data)
	}
	return c.writeMessages(s, data)
}

func (c *ReliableOrderedChannel) writeMessages(s *bitpack.Stream, data PacketData) error {
	count := int32(len(data.Messages))
	if err := s.SerializeInteger(&count, 1, int32(c.config.MaxMessagesPerPacket)); err != nil {
		return err
	}
	typeBits := int32(c.factory.NumTypes() - 1)
	var previous uint16
	for i, m := range data.Messages {
		id := m.ID
		if i == 0 {
			full := uint32(id)
			if err := s.SerializeBits(&full, 16); err != nil {
				return err
			}
		} else {
			if err := s.SerializeSequenceRelative(previous, &id); err != nil {
				return err
			}
		}
		previous = id

		mt := int32(m.Type)
		if err := s.SerializeInteger(&mt, 0, typeBits); err != nil {
			return err
		}
		if err := m.Serialize(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *ReliableOrderedChannel) writeFragment(s *bitpack.Stream, data PacketData) error {
	messageID := uint32(data.MessageID)
	if err := s.SerializeBits(&messageID, 16); err != nil {
		return err
	}
	maxFragIndex := int32(c.config.maxFragmentsPerBlock() - 1)
	fragmentID := int32(data.FragmentID)
	if err := s.SerializeInteger(&fragmentID, 0, maxFragIndex); err != nil {
		return err
	}
	numFragments := int32(data.NumFragments)
	if err := s.SerializeInteger(&numFragments, 1, maxFragIndex+1); err != nil {
		return err
	}
	fragmentBytes := int32(len(data.FragmentData))
	if err := s.SerializeInteger(&fragmentBytes, 1, int32(c.config.BlockFragmentSize)); err != nil {
		return err
	}
	if err := s.SerializeAlign(); err != nil {
		return err
	}
	if err := s.SerializeBytes(data.FragmentData); err != nil {
		return err
	}

	hasPayload := data.BlockPayload != nil
	if err := s.SerializeBool(&hasPayload); err != nil {
		return err
	}
	if hasPayload {
		mt := int32(data.MessageType)
		if err := s.SerializeInteger(&mt, 0, int32(c.factory.NumTypes()-1)); err != nil {
			return err
		}
		if err := data.BlockPayload.Serialize(s); err != nil {
			return err
		}
	}
	return nil
}

// ReadPacketData is the mirror of WritePacketData.
func (c *ReliableOrderedChannel) ReadPacketData(s *bitpack.Stream) (PacketData, error) {
	var blockFlag bool
	if err := s.SerializeBool(&blockFlag); err != nil {
		return PacketData{}, err
	}
	if blockFlag {
		return c.readFragment(s)
	}
	return c.readMessages(s)
}

func (c *ReliableOrderedChannel) readMessages(s *bitpack.Stream) (PacketData, error) {
	var count int32
	if err := s.SerializeInteger(&count, 1, int32(c.config.MaxMessagesPerPacket)); err != nil {
		return PacketData{}, err
	}
	typeBits := int32(c.factory.NumTypes() - 1)

	data := PacketData{ChannelIndex: c.index, Messages: make([]*message.Message, 0, count)}
	var previous uint16
	for i := int32(0); i < count; i++ {
		var id uint16
		if i == 0 {
			var full uint32
			if err := s.SerializeBits(&full, 16); err != nil {
				return PacketData{}, err
			}
			id = uint16(full)
		} else {
			if err := s.SerializeSequenceRelative(previous, &id); err != nil {
				return PacketData{}, err
			}
		}
		previous = id

		var mt int32
		if err := s.SerializeInteger(&mt, 0, typeBits); err != nil {
			return PacketData{}, err
		}
		payload, err := c.factory.Create(uint32(mt))
		if err != nil {
			data.MessageFailedToSerialize = true
			return data, nil
		}
		if err := payload.Serialize(s); err != nil {
			data.MessageFailedToSerialize = true
			return data, nil
		}
		m := message.NewMessage(uint32(mt), payload)
		m.ID = id
		data.Messages = append(data.Messages, m)
	}
	return data, nil
}

func (c *ReliableOrderedChannel) readFragment(s *bitpack.Stream) (PacketData, error) {
	var messageID uint32
	if err := s.SerializeBits(&messageID, 16); err != nil {
		return PacketData{}, err
	}
	maxFragIndex := int32(c.config.maxFragmentsPerBlock() - 1)
	var fragmentID, numFragments, fragmentBytes int32
	if err := s.SerializeInteger(&fragmentID, 0, maxFragIndex); err != nil {
		return PacketData{}, err
	}
	if err := s.SerializeInteger(&numFragments, 1, maxFragIndex+1); err != nil {
		return PacketData{}, err
	}
	if err := s.SerializeInteger(&fragmentBytes, 1, int32(c.config.BlockFragmentSize)); err != nil {
		return PacketData{}, err
	}
	if err := s.SerializeAlign(); err != nil {
		return PacketData{}, err
	}
	buf := make([]byte, fragmentBytes)
	if err := s.SerializeBytes(buf); err != nil {
		return PacketData{}, err
	}

	data := PacketData{
		ChannelIndex: c.index,
		BlockMessage: true,
		MessageID:    uint16(messageID),
		FragmentID:   int(fragmentID),
		NumFragments: int(numFragments),
		FragmentData: buf,
	}

	var hasPayload bool
	if err := s.SerializeBool(&hasPayload); err != nil {
		return PacketData{}, err
	}
	if hasPayload {
		var mt int32
		if err := s.SerializeInteger(&mt, 0, int32(c.factory.NumTypes()-1)); err != nil {
			return PacketData{}, err
		}
		payload, err := c.factory.Create(uint32(mt))
		if err != nil {
			data.MessageFailedToSerialize = true
			return data, nil
		}
		if err := payload.Serialize(s); err != nil {
			data.MessageFailedToSerialize = true
			return data, nil
		}
		data.BlockPayload = payload
		data.MessageType = uint32(mt)
	}
	return data, nil
}

// ProcessPacketData applies one received channel entry from packet seq.
func (c *ReliableOrderedChannel) ProcessPacketData(data PacketData, seq uint16) error {
	if data.MessageFailedToSerialize {
		c.errorLevel = ErrorFailedToSerialize
		return ErrFailedToSerialize
	}
	if data.BlockMessage {
		return c.processFragment(data)
	}
	return c.processMessages(data)
}

func (c *ReliableOrderedChannel) processMessages(data PacketData) error {
	for _, m := range data.Messages {
		if bitpack.SequenceDifference(m.ID, c.receiveMessageID) >= c.config.MessageReceiveQueueSize {
			c.errorLevel = ErrorDesync
			return ErrDesync
		}
		if c.receiveQueue.Exists(m.ID) {
			m.Release()
			continue
		}
		entry := c.receiveQueue.Insert(m.ID)
		if entry == nil {
			m.Release()
			continue
		}
		entry.message = m
	}
	return nil
}

func (c *ReliableOrderedChannel) processFragment(data PacketData) error {
	if data.MessageID != c.receiveMessageID {
		return nil
	}

	if !c.receiveBlock.active {
		c.receiveBlock.active = true
		c.receiveBlock.numFragments = data.NumFragments
		c.receiveBlock.numReceivedFragments = 0
		c.receiveBlock.messageID = data.MessageID
		c.receiveBlock.received = seqbuf.NewBitArray(data.NumFragments)
		c.receiveBlock.blockData = make([]byte, data.NumFragments*c.config.BlockFragmentSize)
	}

	if data.NumFragments != c.receiveBlock.numFragments {
		c.errorLevel = ErrorDesync
		return ErrDesync
	}
	if data.FragmentID < 0 || data.FragmentID >= c.receiveBlock.numFragments {
		return nil
	}
	if c.receiveBlock.received.GetBit(data.FragmentID) {
		return nil
	}

	offset := data.FragmentID * c.config.BlockFragmentSize
	copy(c.receiveBlock.blockData[offset:], data.FragmentData)
	c.receiveBlock.received.SetBit(data.FragmentID)
	c.receiveBlock.numReceivedFragments++

	if data.FragmentID == c.receiveBlock.numFragments-1 {
		c.receiveBlock.blockSize = (c.receiveBlock.numFragments-1)*c.config.BlockFragmentSize + len(data.FragmentData)
	}
	if data.FragmentID == 0 && data.BlockPayload != nil {
		c.receiveBlock.messageType = data.MessageType
		bm := message.NewBlockMessage(data.MessageType, data.BlockPayload)
		bm.ID = data.MessageID
		c.receiveBlock.blockMessage = bm
	}

	if c.receiveBlock.numReceivedFragments == c.receiveBlock.numFragments {
		if c.receiveBlock.blockMessage == nil {
			c.errorLevel = ErrorOutOfMemory
			return ErrOutOfMemory
		}
		c.receiveBlock.blockMessage.AttachBlock(c.receiveBlock.blockData[:c.receiveBlock.blockSize])
		entry := c.receiveQueue.Insert(c.receiveBlock.messageID)
		if entry != nil {
			entry.message = c.receiveBlock.blockMessage
		}
		c.receiveBlock = receiveBlockData{}
	}
	return nil
}

// ProcessAck releases every message (or block fragment) that outgoing
// packet seq carried, once, and advances oldestUnackedMessageID.
func (c *ReliableOrderedChannel) ProcessAck(seq uint16) {
	entry := c.sentPackets.Find(seq)
	if entry == nil || entry.acked {
		return
	}
	entry.acked = true

	if entry.block {
		if !c.sendBlock.active || entry.blockMessageID != c.sendBlock.blockMessageID {
			return
		}
		if c.sendBlock.acked.GetBit(entry.blockFragmentID) {
			return
		}
		c.sendBlock.acked.SetBit(entry.blockFragmentID)
		c.sendBlock.numAckedFragments++
		if c.sendBlock.numAckedFragments == c.sendBlock.numFragments {
			if sqe := c.sendQueue.Find(c.oldestUnackedMessageID); sqe != nil {
				sqe.message.Release()
			}
			c.sendQueue.Remove(c.oldestUnackedMessageID)
			c.sendBlock = sendBlockData{}
			c.updateOldestUnacked()
		}
		return
	}

	for _, id := range entry.messageIDs {
		if sqe := c.sendQueue.Find(id); sqe != nil {
			sqe.message.Release()
			c.sendQueue.Remove(id)
		}
	}
	c.updateOldestUnacked()
}

func (c *ReliableOrderedChannel) updateOldestUnacked() {
	for c.oldestUnackedMessageID != c.sendMessageID && !c.sendQueue.Exists(c.oldestUnackedMessageID) {
		c.oldestUnackedMessageID++
	}
}

func (c *ReliableOrderedChannel) AdvanceTime(now time.Time) {
	c.now = now
}
