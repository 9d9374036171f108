package connection

import (
	"time"

	"netcore/bitpack"
	"netcore/channel"
	"netcore/message"
)

// Channel is the subset of channel.ReliableOrderedChannel and
// channel.UnreliableUnorderedChannel a Connection drives; both concrete
// types satisfy it, letting Connection multiplex either discipline per
// channel index without caring which.
type Channel interface {
	Index() int
	ErrorLevel() channel.ErrorLevel
	HasMessagesToSend() bool
	GetPacketData(availableBits int) (channel.PacketData, bool)
	RecordSent(seq uint16, data channel.PacketData)
	WritePacketData(s *bitpack.Stream, data channel.PacketData) error
	ReadPacketData(s *bitpack.Stream) (channel.PacketData, error)
	ProcessPacketData(data channel.PacketData, seq uint16) error
	ProcessAck(seq uint16)
	AdvanceTime(now time.Time)
}

// Kind selects which delivery discipline a given channel index uses.
type Kind int

const (
	Reliable Kind = iota
	Unreliable
)

// NewChannel constructs the concrete channel.Channel for kind at index.
func NewChannel(kind Kind, index int, cfg channel.Config, factory message.Factory) Channel {
	if kind == Unreliable {
		return channel.NewUnreliableUnorderedChannel(index, cfg, factory)
	}
	return channel.NewReliableOrderedChannel(index, cfg, factory)
}
