// Package connection composes a fixed set of channels into one
// sequence-numbered connection packet per tick, and runs the ack system
// that maps received packet sequences back to per-channel ProcessAck calls.
package connection

import "netcore/bitpack"

// Header prefixes every connection packet body: the packet's own
// sequence number, plus an optional ack/ackBits pair reporting the most
// recently received sequence and a 32-bit bitfield of the 32 preceding
// it. HasAck is false until the first packet from the peer arrives, so
// an all-zero Ack/AckBits never gets mistaken for "sequence 0 acked".
type Header struct {
	Sequence uint16
	HasAck   bool
	Ack      uint16
	AckBits  uint32
}

func (h *Header) Serialize(s *bitpack.Stream) error {
	seq := uint32(h.Sequence)
	if err := s.SerializeBits(&seq, 16); err != nil {
		return err
	}
	if s.IsReading() {
		h.Sequence = uint16(seq)
	}

	if err := s.SerializeBool(&h.HasAck); err != nil {
		return err
	}
	if !h.HasAck {
		return nil
	}

	if err := s.SerializeAckRelative(h.Sequence, &h.Ack); err != nil {
		return err
	}
	if err := s.SerializeBits(&h.AckBits, 32); err != nil {
		return err
	}
	return nil
}
