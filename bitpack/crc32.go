package bitpack

import (
	"encoding/binary"
	"hash/crc32"
)

// CalculateCRC32 computes the IEEE 802.3 reflected-polynomial CRC32 over
// protocolId (encoded little-endian, matching the wire's "network order")
// followed by data. Packet framing zeros the CRC field before calling
// this and stores the result back into that field on write, mirroring it
// on read to detect corruption or a protocol-id mismatch.
//
// This uses hash/crc32's IEEE table rather than hand-rolling the
// reflected-polynomial table original_source builds inline: the
// polynomial is the standard one, and no repository in the retrieved
// pack wraps a third-party CRC32 implementation, so the standard library
// table is the idiomatic choice here.
func CalculateCRC32(protocolId uint32, data []byte) uint32 {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], protocolId)

	crc := crc32.NewIEEE()
	crc.Write(header[:])
	crc.Write(data)
	return crc.Sum32()
}
