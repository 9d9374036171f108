// Package fragment splits oversize packets into wire-sized fragments and
// reassembles them on the receive side through a sequence-indexed window
// tolerant of loss, duplication, reordering, and malformed fragments.
package fragment

import (
	"netcore/bitpack"
	"netcore/seqbuf"
)

const (
	// MaxFragmentSize is the payload bytes carried by every fragment but
	// the last one of a packet.
	MaxFragmentSize = 1024
	// MaxFragmentsPerPacket bounds how many fragments one packet can
	// split into, capping MaxPacketSize at 256 KiB.
	MaxFragmentsPerPacket = 256
	// MaxPacketSize is the largest packet this layer can carry.
	MaxPacketSize = MaxFragmentSize * MaxFragmentsPerPacket
	// defaultWindowSize is how many distinct packet sequences can be
	// mid-reassembly at once.
	defaultWindowSize = 64
	// maxSequenceLookahead rejects a fragment whose sequence has jumped
	// too far ahead of the window to plausibly be legitimate.
	maxSequenceLookahead = 1024
)

// PacketBufferEntry tracks one packet's in-progress reassembly.
type PacketBufferEntry struct {
	Sequence          uint16
	NumFragments      int
	ReceivedFragments int
	FragmentSize      [MaxFragmentsPerPacket]int
	FragmentData      [MaxFragmentsPerPacket][]byte
	received          [MaxFragmentsPerPacket]bool
}

// ReassemblyBuffer is the sequence-indexed reassembly window. It wraps a
// SequenceBuffer[PacketBufferEntry], reusing its wraparound-aware
// insert/evict semantics for "advance the window, free anything the
// advance leaves behind" directly instead of reimplementing it.
type ReassemblyBuffer struct {
	entries *seqbuf.SequenceBuffer[PacketBufferEntry]
}

// NewReassemblyBuffer allocates a reassembly window of windowSize slots.
func NewReassemblyBuffer(windowSize int) *ReassemblyBuffer {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &ReassemblyBuffer{entries: seqbuf.NewSequenceBuffer[PacketBufferEntry](windowSize)}
}

// ProcessFragment feeds one received fragment into the window. It returns
// (reassembled, true) once the last fragment of a packet arrives, or
// (nil, false) while more fragments are still outstanding or the fragment
// was rejected outright. Rejection never mutates existing state.
func (b *ReassemblyBuffer) ProcessFragment(sequence uint16, fragmentID, numFragments, fragmentSize int, data []byte) ([]byte, bool) {
	if fragmentSize <= 0 || fragmentSize > MaxFragmentSize {
		return nil, false
	}
	if numFragments <= 0 || numFragments > MaxFragmentsPerPacket {
		return nil, false
	}
	if fragmentID < 0 || fragmentID >= numFragments {
		return nil, false
	}
	isLast := fragmentID == numFragments-1
	if !isLast && fragmentSize != MaxFragmentSize {
		return nil, false
	}
	if bitpack.SequenceDifference(sequence, b.entries.GetSequence()) > maxSequenceLookahead {
		return nil, false
	}

	entry := b.entries.Find(sequence)
	if entry == nil {
		if occupant, occupied := b.entries.Occupant(sequence); occupied && occupant != sequence {
			return nil, false // slot held by a different in-progress sequence
		}
		entry = b.entries.Insert(sequence)
		if entry == nil {
			return nil, false // too old relative to the window
		}
		entry.Sequence = sequence
		entry.NumFragments = numFragments
	} else {
		if entry.NumFragments != numFragments {
			return nil, false
		}
		if entry.received[fragmentID] {
			return nil, false // duplicate
		}
	}

	buf := make([]byte, fragmentSize)
	copy(buf, data[:fragmentSize])
	entry.FragmentData[fragmentID] = buf
	entry.FragmentSize[fragmentID] = fragmentSize
	entry.received[fragmentID] = true
	entry.ReceivedFragments++

	if entry.ReceivedFragments < entry.NumFragments {
		return nil, false
	}

	total := 0
	for j := 0; j < entry.NumFragments; j++ {
		total += entry.FragmentSize[j]
	}
	out := make([]byte, 0, total)
	for j := 0; j < entry.NumFragments; j++ {
		out = append(out, entry.FragmentData[j]...)
	}
	b.entries.Remove(sequence)
	return out, true
}

// Fragment is one piece of a split packet ready to be framed onto the wire.
type Fragment struct {
	FragmentID   int
	NumFragments int
	Data         []byte
}

// Split breaks data into up to MaxFragmentsPerPacket fragments of
// MaxFragmentSize bytes, the last carrying the remainder.
func Split(data []byte) []Fragment {
	numFragments := (len(data) + MaxFragmentSize - 1) / MaxFragmentSize
	if numFragments == 0 {
		numFragments = 1
	}
	fragments := make([]Fragment, 0, numFragments)
	for i := 0; i < numFragments; i++ {
		start := i * MaxFragmentSize
		end := start + MaxFragmentSize
		if end > len(data) {
			end = len(data)
		}
		fragments = append(fragments, Fragment{
			FragmentID:   i,
			NumFragments: numFragments,
			Data:         data[start:end],
		})
	}
	return fragments
}
