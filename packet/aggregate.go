package packet

import (
	"encoding/binary"

	"netcore/bitpack"
)

// WriteAggregatePacket concatenates packets under one CRC32 envelope. Each
// sub-packet is prefixed by type+1 range-coded over numTypes+1 (so 0 is
// free to use as the end-of-list sentinel) and byte-aligned so a reader
// that only wants to skip past it can do so without re-parsing the body.
func WriteAggregatePacket(buf []byte, packets []Packet, factory Factory, cfg Config, header Header) (int, error) {
	s := bitpack.NewWriteStream(buf)

	crcOffset := -1
	if !cfg.RawFormat {
		crcOffset = s.BytesProcessed()
		var zero uint32
		if err := s.SerializeBits(&zero, 32); err != nil {
			return 0, err
		}
	}

	if header != nil {
		if err := header.Serialize(s); err != nil {
			return 0, err
		}
	}

	numTypes := factory.NumTypes()
	for _, p := range packets {
		tag := int32(p.Type()) + 1
		if err := s.SerializeInteger(&tag, 0, int32(numTypes)); err != nil {
			return 0, err
		}
		if err := p.Serialize(s); err != nil {
			return 0, err
		}
		if err := s.SerializeCheck(); err != nil {
			return 0, err
		}
		if err := s.SerializeAlign(); err != nil {
			return 0, err
		}
	}

	// End-of-list sentinel: tag 0, out of the [1,numTypes] range any real
	// sub-packet uses.
	sentinel := int32(0)
	if err := s.SerializeInteger(&sentinel, 0, int32(numTypes)); err != nil {
		return 0, err
	}
	s.Flush()

	written := s.BytesProcessed()
	if crcOffset >= 0 {
		crc := bitpack.CalculateCRC32(cfg.ProtocolID, buf[:written])
		binary.LittleEndian.PutUint32(buf[crcOffset:], crc)
	}
	return written, nil
}

// ReadAggregatePacket reads sub-packets until the end-of-list sentinel or
// maxPackets, whichever comes first.
func ReadAggregatePacket(buf []byte, numBits int, factory Factory, cfg Config, header Header, maxPackets int) ([]Packet, error) {
	numBytes := (numBits + 7) / 8

	if !cfg.RawFormat {
		if 4 > numBytes {
			return nil, bitpack.ErrStreamOverflow
		}
		storedCRC := binary.LittleEndian.Uint32(buf)
		zeroed := make([]byte, numBytes)
		copy(zeroed, buf[:numBytes])
		binary.LittleEndian.PutUint32(zeroed, 0)
		if bitpack.CalculateCRC32(cfg.ProtocolID, zeroed) != storedCRC {
			return nil, bitpack.ErrCRC32Mismatch
		}
	}

	s := bitpack.NewReadStream(buf, numBits)

	if !cfg.RawFormat {
		var crcField uint32
		if err := s.SerializeBits(&crcField, 32); err != nil {
			return nil, err
		}
	}

	if header != nil {
		if err := header.Serialize(s); err != nil {
			return nil, err
		}
	}

	numTypes := factory.NumTypes()
	var packets []Packet
	for len(packets) < maxPackets {
		var tag int32
		if err := s.SerializeInteger(&tag, 0, int32(numTypes)); err != nil {
			return nil, err
		}
		if tag == 0 {
			break
		}
		p, err := factory.Create(uint32(tag - 1))
		if err != nil {
			return nil, err
		}
		if err := p.Serialize(s); err != nil {
			return nil, err
		}
		if err := s.SerializeCheck(); err != nil {
			return nil, err
		}
		if err := s.SerializeAlign(); err != nil {
			return nil, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}
