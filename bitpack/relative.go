package bitpack

// SerializeSequenceRelative writes value as a delta against baseline: most
// messages are only a handful of sequence numbers apart from the packet
// carrying them, so a small signed delta is cheap-coded in 5 bits and only
// falls back to a full 16-bit literal outside that range. This is our own
// compact encoding in the spirit of the reliable channel's relative message
// id coding (exact bit widths aren't in the retrieved original_source, so
// this isn't a byte-for-byte port — see DESIGN.md).
func (s *Stream) SerializeSequenceRelative(baseline uint16, value *uint16) error {
	const minDelta, maxDelta = -16, 15

	var small bool
	var delta int32
	if s.IsWriting() {
		d := SequenceDifference(*value, baseline)
		small = d >= minDelta && d <= maxDelta
		delta = int32(d)
	}
	if err := s.SerializeBool(&small); err != nil {
		return err
	}
	if small {
		if err := s.SerializeInteger(&delta, minDelta, maxDelta); err != nil {
			return err
		}
		if s.IsReading() {
			*value = uint16(int32(baseline) + delta)
		}
		return nil
	}

	var full uint32
	if s.IsWriting() {
		full = uint32(*value)
	}
	if err := s.SerializeBits(&full, 16); err != nil {
		return err
	}
	if s.IsReading() {
		*value = uint16(full)
	}
	return nil
}

// SerializeAckRelative encodes an acked sequence number as its backward
// distance from sequence (the packet sequence carrying the ack): ack
// always trails sequence, by wraparound subtraction mod 65536, so unlike
// SerializeSequenceRelative's signed delta this is always positive and
// small in the common case. Deltas in [1,64] pack into a 6-bit integer
// behind a range flag; anything further back falls back to a 16-bit
// literal.
func (s *Stream) SerializeAckRelative(sequence uint16, ack *uint16) error {
	const maxAckDelta = 64

	var inRange bool
	var delta int32
	if s.IsWriting() {
		d := int32(sequence) - int32(*ack)
		if d <= 0 {
			d += 65536
		}
		delta = d
		inRange = delta <= maxAckDelta
	}
	if err := s.SerializeBool(&inRange); err != nil {
		return err
	}
	if inRange {
		if err := s.SerializeInteger(&delta, 1, maxAckDelta); err != nil {
			return err
		}
		if s.IsReading() {
			*ack = uint16(int32(sequence) - delta)
		}
		return nil
	}

	var full uint32
	if s.IsWriting() {
		full = uint32(*ack)
	}
	if err := s.SerializeBits(&full, 16); err != nil {
		return err
	}
	if s.IsReading() {
		*ack = uint16(full)
	}
	return nil
}
