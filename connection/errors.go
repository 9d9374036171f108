package connection

import "errors"

// ErrorLevel is the connection-wide sticky error flag, promoted from
// whichever collaborator (a channel, the allocator, the message factory)
// first hit trouble.
type ErrorLevel int

const (
	ErrorNone ErrorLevel = iota
	ErrorReadPacketFailed
	ErrorChannel
	ErrorAllocator
	ErrorMessageFactory
)

func (e ErrorLevel) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorReadPacketFailed:
		return "read_packet_failed"
	case ErrorChannel:
		return "channel"
	case ErrorAllocator:
		return "allocator"
	case ErrorMessageFactory:
		return "message_factory"
	default:
		return "unknown"
	}
}

var (
	ErrReadPacketFailed = errors.New("connection: failed to read packet")
	ErrUnknownChannel    = errors.New("connection: channel index out of range")
)
