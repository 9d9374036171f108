package bitpack

import "errors"

var (
	// ErrStreamOverflow is returned when a read or write would run past
	// the declared length of the underlying buffer.
	ErrStreamOverflow = errors.New("bitpack: stream overflow")
	// ErrStreamCorrupt is returned when alignment padding or a check
	// value doesn't match what the writer would have produced.
	ErrStreamCorrupt = errors.New("bitpack: stream corrupt")
	// ErrValueOutOfRange is returned when SerializeInteger is asked to
	// write a value outside its declared [min,max] bounds.
	ErrValueOutOfRange = errors.New("bitpack: value out of range")
	// ErrCRC32Mismatch is returned by packet framing when the CRC32
	// recomputed on read doesn't match the value carried in the packet.
	ErrCRC32Mismatch = errors.New("bitpack: crc32 mismatch")
)
