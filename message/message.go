// Package message implements application-level messages carried over a
// channel: a reference-counted envelope with a 16-bit id and a type tag,
// plus a block variant that attaches a detachable byte buffer streamed
// as its own fragments by the reliable channel.
package message

import (
	"errors"

	"netcore/bitpack"
)

var ErrUnknownMessageType = errors.New("message: unknown message type")

// Payload is the serialize contract every concrete message type
// implements for its own fields, separate from the envelope (id, type,
// refcount) Message itself owns.
type Payload interface {
	Serialize(s *bitpack.Stream) error
}

// Message is the reference-counted envelope around a Payload. A message
// is shared by whichever combination of a channel's send queue, its
// sent-packet log entries, and (once delivered) a receive queue slot
// currently reference it; Release reports when the last reference has
// been dropped.
type Message struct {
	ID      uint16
	Type    uint32
	refs    int
	payload Payload
	block   *Block
}

// Block is the detachable byte buffer a block message carries, separate
// from its envelope so the reassembled bytes can be handed over by the
// receive-side block state machine without copying through Payload.
type Block struct {
	Data []byte
}

// NewMessage wraps payload with a fresh, single-referenced envelope.
func NewMessage(msgType uint32, payload Payload) *Message {
	return &Message{Type: msgType, payload: payload, refs: 1}
}

// NewBlockMessage wraps payload the same way as NewMessage. The message
// reports IsBlock only once block bytes are attached via AttachBlock.
func NewBlockMessage(msgType uint32, payload Payload) *Message {
	return &Message{Type: msgType, payload: payload, refs: 1}
}

func (m *Message) IsBlock() bool { return m.block != nil }

// GetPayload exposes the envelope's payload, used when a block message's
// metadata needs to ride alongside fragment 0 of its block.
func (m *Message) GetPayload() Payload { return m.payload }

// AttachBlock transfers ownership of data to the message. Called once:
// on the send side when the caller hands a block to the channel, or on
// the receive side once every fragment has been reassembled.
func (m *Message) AttachBlock(data []byte) { m.block = &Block{Data: data} }

func (m *Message) BlockData() []byte {
	if m.block == nil {
		return nil
	}
	return m.block.Data
}

// Serialize drives the payload's own Serialize, leaving the envelope
// fields (id, type) to whatever framing already range-coded them.
func (m *Message) Serialize(s *bitpack.Stream) error {
	return m.payload.Serialize(s)
}

// AddRef increments the reference count. Called when a new owner
// (a send-queue slot, a sent-packet-entry) starts referencing the message.
func (m *Message) AddRef() { m.refs++ }

// Release decrements the reference count and reports whether it reached
// zero (the caller is then responsible for discarding the message).
func (m *Message) Release() bool {
	m.refs--
	return m.refs <= 0
}

func (m *Message) RefCount() int { return m.refs }

// Factory creates empty payloads for a given wire type tag, the same role
// packet.Factory plays for packets, and reports how many message types
// the channel's range-coded type tag spans.
type Factory interface {
	NumTypes() int
	Create(msgType uint32) (Payload, error)
}
