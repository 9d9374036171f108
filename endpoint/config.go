package endpoint

import (
	"time"

	"netcore/connection"
	"netcore/message"
)

// ConnectionFactory builds the per-slot channel set a Server or Client
// hands its connection.Connection once a handshake completes. Kept as a
// caller-supplied hook (Config.NewChannels) so applications
// can mix channel counts/disciplines per protocol id without endpoint
// needing to know about message.Factory implementations.
type ConnectionFactory func() []connection.Channel

// Config holds the connect/challenge/response handshake's timing and
// sizing knobs. Numeric defaults below follow the relative proportions
// of a sub-second retry cadence against several seconds of timeout
// headroom, the same shape common client/server handshake examples in
// this space use.
type Config struct {
	ProtocolID uint32
	MaxClients int

	ConnectionConfig connection.Config
	NewChannels      ConnectionFactory

	ConnectionRequestSendRate   time.Duration
	ChallengeSendRate           time.Duration
	ConnectionKeepAliveSendRate time.Duration

	ConnectionRequestTimeOut time.Duration
	ChallengeResponseTimeOut time.Duration
	KeepAliveTimeOut         time.Duration
	ChallengeTimeOut         time.Duration
	ClientSaltTimeout        time.Duration
}

// DefaultConfig seeds every handshake timing knob and builds numChannels
// reliable-ordered channels via factory for each connected slot.
func DefaultConfig(protocolID uint32, maxClients int, factory message.Factory, numChannels int) Config {
	connCfg := connection.DefaultConfig(protocolID, numChannels)
	return Config{
		ProtocolID:       protocolID,
		MaxClients:       maxClients,
		ConnectionConfig: connCfg,
		NewChannels: func() []connection.Channel {
			chans := make([]connection.Channel, len(connCfg.Channels))
			for i, setup := range connCfg.Channels {
				chans[i] = connection.NewChannel(setup.Kind, i, setup.Config, factory)
			}
			return chans
		},

		ConnectionRequestSendRate:   100 * time.Millisecond,
		ChallengeSendRate:           100 * time.Millisecond,
		ConnectionKeepAliveSendRate: 100 * time.Millisecond,

		ConnectionRequestTimeOut: 5 * time.Second,
		ChallengeResponseTimeOut: 5 * time.Second,
		KeepAliveTimeOut:         10 * time.Second,
		ChallengeTimeOut:         10 * time.Second,
		ClientSaltTimeout:        10 * time.Second,
	}
}
