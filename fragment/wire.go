package fragment

import (
	"encoding/binary"

	"netcore/bitpack"
	"netcore/packet"
)

// WritePacket frames one fragment as its own well-formed packet of type 0:
// crc32, sequence, the type tag, fragment id, fragment count, byte align,
// then the fragment's payload bytes. The outer CRC covers the whole thing.
func WritePacket(buf []byte, protocolID uint32, numTypes int, sequence uint16, f Fragment) (int, error) {
	s := bitpack.NewWriteStream(buf)

	var zero uint32
	if err := s.SerializeBits(&zero, 32); err != nil {
		return 0, err
	}

	seq := uint32(sequence)
	if err := s.SerializeBits(&seq, 16); err != nil {
		return 0, err
	}

	typeTag := int32(packet.FragmentPacketType)
	if numTypes > 1 {
		if err := s.SerializeInteger(&typeTag, 0, int32(numTypes-1)); err != nil {
			return 0, err
		}
	}

	fragmentID := int32(f.FragmentID)
	if err := s.SerializeInteger(&fragmentID, 0, MaxFragmentsPerPacket-1); err != nil {
		return 0, err
	}
	numFragments := int32(f.NumFragments)
	if err := s.SerializeInteger(&numFragments, 1, MaxFragmentsPerPacket); err != nil {
		return 0, err
	}
	if err := s.SerializeAlign(); err != nil {
		return 0, err
	}
	if err := s.SerializeBytes(f.Data); err != nil {
		return 0, err
	}
	s.Flush()

	written := s.BytesProcessed()
	crc := bitpack.CalculateCRC32(protocolID, buf[:written])
	binary.LittleEndian.PutUint32(buf, crc)
	return written, nil
}

// ReadPacket parses a fragment packet previously written by WritePacket.
// The fragment's payload size isn't carried on the wire; it's whatever
// remains in buf after the fixed-size header, consistent with how the
// sender sizes the datagram it hands to the socket.
func ReadPacket(buf []byte, numBits int, protocolID uint32, numTypes int) (sequence uint16, f Fragment, err error) {
	numBytes := (numBits + 7) / 8
	if numBytes < 4 {
		return 0, Fragment{}, bitpack.ErrStreamOverflow
	}
	storedCRC := binary.LittleEndian.Uint32(buf)
	zeroed := make([]byte, numBytes)
	copy(zeroed, buf[:numBytes])
	binary.LittleEndian.PutUint32(zeroed, 0)
	if bitpack.CalculateCRC32(protocolID, zeroed) != storedCRC {
		return 0, Fragment{}, bitpack.ErrCRC32Mismatch
	}

	s := bitpack.NewReadStream(buf, numBits)
	var crcField uint32
	if err := s.SerializeBits(&crcField, 32); err != nil {
		return 0, Fragment{}, err
	}

	var seq uint32
	if err := s.SerializeBits(&seq, 16); err != nil {
		return 0, Fragment{}, err
	}

	var typeTag int32
	if numTypes > 1 {
		if err := s.SerializeInteger(&typeTag, 0, int32(numTypes-1)); err != nil {
			return 0, Fragment{}, err
		}
		if typeTag != packet.FragmentPacketType {
			return 0, Fragment{}, bitpack.ErrStreamCorrupt
		}
	}

	var fragmentID, numFragments int32
	if err := s.SerializeInteger(&fragmentID, 0, MaxFragmentsPerPacket-1); err != nil {
		return 0, Fragment{}, err
	}
	if err := s.SerializeInteger(&numFragments, 1, MaxFragmentsPerPacket); err != nil {
		return 0, Fragment{}, err
	}
	if err := s.SerializeAlign(); err != nil {
		return 0, Fragment{}, err
	}

	fragmentSize := numBytes - s.BytesProcessed()
	if fragmentSize <= 0 || fragmentSize > MaxFragmentSize {
		return 0, Fragment{}, bitpack.ErrStreamCorrupt
	}
	payload := make([]byte, fragmentSize)
	if err := s.SerializeBytes(payload); err != nil {
		return 0, Fragment{}, err
	}

	return uint16(seq), Fragment{
		FragmentID:   int(fragmentID),
		NumFragments: int(numFragments),
		Data:         payload,
	}, nil
}
