package endpoint

import (
	"crypto/rand"
	"encoding/binary"
)

// newSalt mints a random 64-bit client/challenge salt. Not a cryptographic
// commitment of any kind (this handshake carries no encryption-at-rest) —
// just wide enough that two concurrent clients behind the same NAT don't
// collide in the challenge table.
func newSalt() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}
