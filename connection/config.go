package connection

import "netcore/channel"

// ChannelSetup pairs a channel's delivery discipline with its sizing.
type ChannelSetup struct {
	Kind   Kind
	Config channel.Config
}

// Config holds the connection layer's own knobs, as opposed to
// per-channel sizing (channel.Config) or the handshake/transport layers.
type Config struct {
	ProtocolID uint32

	MaxPacketSize              int
	PacketReassemblyBufferSize int
	AckedPacketsBufferSize     int
	ReceivedPacketsBufferSize  int
	FragmentPacketsAbove       int

	Channels []ChannelSetup
}

// DefaultConfig returns the configuration table's connection-layer
// defaults with numChannels reliable-ordered channels.
func DefaultConfig(protocolID uint32, numChannels int) Config {
	channels := make([]ChannelSetup, numChannels)
	for i := range channels {
		channels[i] = ChannelSetup{Kind: Reliable, Config: channel.DefaultConfig()}
	}
	return Config{
		ProtocolID:                  protocolID,
		MaxPacketSize:               8 * 1024,
		PacketReassemblyBufferSize:  64,
		AckedPacketsBufferSize:      256,
		ReceivedPacketsBufferSize:   256,
		FragmentPacketsAbove:        1024,
		Channels:                    channels,
	}
}
