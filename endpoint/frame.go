package endpoint

import "netcore/transport"

// addrEqual compares two transport.Addr values field-by-field: Addr embeds
// a net.IP (a byte slice), so it isn't comparable with ==.
func addrEqual(a, b transport.Addr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// frameKind is the outermost one-byte discriminator Server/Client prefix
// onto every datagram: a handshake packet (this package's own six-type
// packet.Factory) versus an established connection's traffic (which
// carries connection.Connection's own inner datagramKind byte). Two
// independent framing layers, demultiplexed one level at a time, rather
// than folding the handshake into the same type space the connection
// layer uses for fragment-vs-body — the two layers exist at different
// points in a slot's lifetime and have no reason to share a tag space.
type frameKind byte

const (
	frameHandshake  frameKind = 0
	frameConnection frameKind = 1
)

func prependFrame(kind frameKind, body []byte) []byte {
	out := make([]byte, len(body)+1)
	out[0] = byte(kind)
	copy(out[1:], body)
	return out
}
