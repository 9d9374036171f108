// Package channel implements the two message-multiplexing disciplines a
// connection composes per packet: a reliable-ordered channel with
// per-message acknowledgement and a block-streaming sub-protocol, and an
// unreliable-unordered channel with best-effort, budget-gated delivery.
package channel

import "time"

// Config mirrors the per-channel defaults of the original engine's
// ChannelConfig: the three sequence-buffer sizes must each divide 65536
// so the modulo-indexed ring never straddles a sequence-number wraparound
// boundary awkwardly.
type Config struct {
	SentPacketBufferSize     int
	MessageSendQueueSize     int
	MessageReceiveQueueSize  int
	MaxMessagesPerPacket     int
	PacketBudget             int // bytes; -1 == unlimited
	MaxBlockSize             int
	BlockFragmentSize        int
	MessageResendTime        time.Duration
	BlockFragmentResendTime  time.Duration

	// UnreliableSendQueueSize/UnreliableReceiveQueueSize size the ring
	// queues of an UnreliableUnorderedChannel; unused by the reliable
	// channel.
	UnreliableSendQueueSize    int
	UnreliableReceiveQueueSize int
}

// DefaultConfig returns the configuration table's defaults.
func DefaultConfig() Config {
	return Config{
		SentPacketBufferSize:       1024,
		MessageSendQueueSize:       1024,
		MessageReceiveQueueSize:    1024,
		MaxMessagesPerPacket:       256,
		PacketBudget:               -1,
		MaxBlockSize:               256 * 1024,
		BlockFragmentSize:          1024,
		MessageResendTime:          100 * time.Millisecond,
		BlockFragmentResendTime:    250 * time.Millisecond,
		UnreliableSendQueueSize:    256,
		UnreliableReceiveQueueSize: 256,
	}
}

func (c Config) maxFragmentsPerBlock() int {
	return (c.MaxBlockSize + c.BlockFragmentSize - 1) / c.BlockFragmentSize
}
