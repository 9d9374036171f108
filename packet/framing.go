package packet

import (
	"encoding/binary"

	"netcore/bitpack"
)

// Config carries the framing parameters shared by every packet written or
// read against one protocol: the number of leading zero bytes reserved
// for transport-layer prefixing, and whether the CRC32 envelope is
// present at all (RawFormat skips it, used for packets exchanged over an
// already-authenticated channel).
type Config struct {
	ProtocolID  uint32
	PrefixBytes int
	RawFormat   bool
}

// WritePacket frames p into buf per the wire format: prefix zero bytes,
// a reserved CRC32, an optional header, the range-coded type tag (skipped
// when the factory only has one type), the body, and an end-of-packet
// check value. It returns the number of bytes written.
func WritePacket(buf []byte, p Packet, factory Factory, cfg Config, header Header) (int, error) {
	s := bitpack.NewWriteStream(buf)

	var zeroByte uint32
	for i := 0; i < cfg.PrefixBytes; i++ {
		if err := s.SerializeBits(&zeroByte, 8); err != nil {
			return 0, err
		}
	}

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
	if numTypes > 1 {
		t := int32(p.Type())
		if err := s.SerializeInteger(&t, 0, int32(numTypes-1)); err != nil {
			return 0, err
		}
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
	s.Flush()

	written := s.BytesProcessed()
	if crcOffset >= 0 {
		crc := bitpack.CalculateCRC32(cfg.ProtocolID, buf[:written])
		binary.LittleEndian.PutUint32(buf[crcOffset:], crc)
	}
	return written, nil
}

// ReadPacket is the mirror of WritePacket: it validates the CRC32 (when
// present), then dispatches the type tag through factory to allocate the
// right concrete Packet before serializing its body.
func ReadPacket(buf []byte, numBits int, factory Factory, cfg Config, header Header) (Packet, error) {
	numBytes := (numBits + 7) / 8

	if !cfg.RawFormat {
		crcOffset := cfg.PrefixBytes
		if crcOffset+4 > numBytes {
			return nil, bitpack.ErrStreamOverflow
		}
		storedCRC := binary.LittleEndian.Uint32(buf[crcOffset:])
		zeroed := make([]byte, numBytes)
		copy(zeroed, buf[:numBytes])
		binary.LittleEndian.PutUint32(zeroed[crcOffset:], 0)
		if bitpack.CalculateCRC32(cfg.ProtocolID, zeroed) != storedCRC {
			return nil, bitpack.ErrCRC32Mismatch
		}
	}

	s := bitpack.NewReadStream(buf, numBits)

	var byteVal uint32
	for i := 0; i < cfg.PrefixBytes; i++ {
		if err := s.SerializeBits(&byteVal, 8); err != nil {
			return nil, err
		}
	}

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
	var packetType uint32
	if numTypes > 1 {
		var t int32
		if err := s.SerializeInteger(&t, 0, int32(numTypes-1)); err != nil {
			return nil, err
		}
		packetType = uint32(t)
	}

	p, err := factory.Create(packetType)
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
	return p, nil
}
