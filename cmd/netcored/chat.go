package main

import (
	"netcore/bitpack"
	"netcore/message"
)

const maxChatTextLength = 256

// chatMessage is the one application message type this example server
// exchanges: a plain text line, carried reliably on channel 0 and
// best-effort on channel 1 (e.g. for a position/heartbeat variant a
// real gamemode would define separately).
type chatMessage struct {
	Text string
}

func (c *chatMessage) Serialize(s *bitpack.Stream) error {
	return s.SerializeString(&c.Text, maxChatTextLength)
}

type chatFactory struct{}

func (chatFactory) NumTypes() int { return 1 }

func (chatFactory) Create(msgType uint32) (message.Payload, error) {
	if msgType != 0 {
		return nil, message.ErrUnknownMessageType
	}
	return &chatMessage{}, nil
}
