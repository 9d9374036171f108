// Package packet implements the outer packet framing and aggregation
// layer: CRC-sealed, type-tagged, self-describing packets built on top of
// bitpack.Stream.
package packet

import "netcore/bitpack"

// FragmentPacketType is reserved: any packet carrying this type is a
// fragment of a larger packet, handled by the fragment package rather
// than by a registered Factory entry.
const FragmentPacketType = 0

// Header is the serialize contract shared by application headers and
// packet bodies: the same method drives write, read, and measure.
type Header interface {
	Serialize(s *bitpack.Stream) error
}

// Packet is a Header that additionally reports its own type tag, used to
// range-code the type field and to look itself up again on the read side
// via a Factory.
type Packet interface {
	Header
	Type() uint32
}

// Factory creates an empty Packet instance for a given wire type tag so
// the reader can allocate a packet to serialize into, and reports how
// many distinct types exist (the type tag is range-coded over this count).
type Factory interface {
	NumTypes() int
	Create(packetType uint32) (Packet, error)
}
