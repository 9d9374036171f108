package channel

import "netcore/message"

// PacketData is the channel-tagged union a Connection composes into one
// outgoing packet: either a batch of regular messages, or exactly one
// block fragment (optionally carrying the block's envelope payload, on
// fragment 0 only, so the receiver can materialize the BlockMessage the
// first time it sees any piece of the block).
type PacketData struct {
	ChannelIndex int
	BlockMessage bool

	// Regular delivery.
	Messages []*message.Message

	// Block fragment delivery.
	MessageID    uint16
	FragmentID   int
	NumFragments int
	FragmentData []byte
	BlockPayload message.Payload // non-nil only when FragmentID == 0
	MessageType  uint32

	// Set by ProcessPacketData on the receive side when a message inside
	// this entry failed to deserialize; the channel promotes this to a
	// sticky ErrorFailedToSerialize.
	MessageFailedToSerialize bool
}
