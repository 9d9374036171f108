package endpoint

import "netcore/transport"

// murmurHash64 is MurmurHash64A (Austin Appleby's 64-bit variant), used
// to build the challenge table key. Its exact mixing constants are
// unimportant beyond being that algorithm's — what the eviction policy
// and DoS posture depend on is the key shape (address XOR client salt
// XOR server salt), not which 64-bit hash computes it.
func murmurHash64(data []byte, seed uint64) uint64 {
	const m = 0xc6a4a7935bd1e995
	const r = 47

	h := seed ^ (uint64(len(data)) * m)

	n := len(data) / 8
	for i := 0; i < n; i++ {
		k := uint64(data[i*8]) | uint64(data[i*8+1])<<8 | uint64(data[i*8+2])<<16 |
			uint64(data[i*8+3])<<24 | uint64(data[i*8+4])<<32 | uint64(data[i*8+5])<<40 |
			uint64(data[i*8+6])<<48 | uint64(data[i*8+7])<<56
		k *= m
		k ^= k >> r
		k *= m
		h ^= k
		h *= m
	}

	tail := data[n*8:]
	switch len(tail) {
	case 7:
		h ^= uint64(tail[6]) << 48
		fallthrough
	case 6:
		h ^= uint64(tail[5]) << 40
		fallthrough
	case 5:
		h ^= uint64(tail[4]) << 32
		fallthrough
	case 4:
		h ^= uint64(tail[3]) << 24
		fallthrough
	case 3:
		h ^= uint64(tail[2]) << 16
		fallthrough
	case 2:
		h ^= uint64(tail[1]) << 8
		fallthrough
	case 1:
		h ^= uint64(tail[0])
		h *= m
	}

	h ^= h >> r
	h *= m
	h ^= h >> r
	return h
}

func hashAddr(addr transport.Addr) uint64 {
	return murmurHash64([]byte(addr.String()), 0)
}

func hashSalt(salt uint64) uint64 {
	buf := [8]byte{
		byte(salt), byte(salt >> 8), byte(salt >> 16), byte(salt >> 24),
		byte(salt >> 32), byte(salt >> 40), byte(salt >> 48), byte(salt >> 56),
	}
	return murmurHash64(buf[:], 0)
}

// challengeKey builds the single-slot hash table key: address, client
// salt, and server salt each hashed and XORed together. A collision
// silently evicts whatever occupied the slot before it — deliberately
// cheap, the eviction policy is part of the DoS posture.
func challengeKey(addr transport.Addr, clientSalt, serverSalt uint64) uint64 {
	return hashAddr(addr) ^ hashSalt(clientSalt) ^ hashSalt(serverSalt)
}
