// Package seqbuf provides the generic sliding window over a 16-bit
// sequence number space used by packet reassembly, sent-packet tracking,
// and channel send/receive queues.
package seqbuf

import "netcore/bitpack"

// SequenceBuffer is a fixed-size ring indexed by sequence number modulo
// its size. Entries older than the window slide out as the window
// advances; ported from yojimbo's SequenceBuffer<T> template.
type SequenceBuffer[T any] struct {
	size      int
	sequence  uint16
	entrySeq  []uint32 // sentinel 0xFFFFFFFF marks an empty slot
	entries   []T
}

const emptySlot = 0xFFFFFFFF

// NewSequenceBuffer allocates a buffer with the given power-of-two-or-not size.
func NewSequenceBuffer[T any](size int) *SequenceBuffer[T] {
	if size <= 0 {
		panic("seqbuf: size must be positive")
	}
	b := &SequenceBuffer[T]{
		size:     size,
		entrySeq: make([]uint32, size),
		entries:  make([]T, size),
	}
	b.Reset()
	return b
}

// Reset empties every slot and rewinds the current sequence to 0.
func (b *SequenceBuffer[T]) Reset() {
	b.sequence = 0
	for i := range b.entrySeq {
		b.entrySeq[i] = emptySlot
	}
}

func (b *SequenceBuffer[T]) index(sequence uint16) int {
	return int(sequence) % b.size
}

// Insert stores a new entry at sequence, evicting anything older that the
// window's advance now excludes, and returns a pointer to the zero-valued
// slot for the caller to fill in. It returns nil if sequence is too old
// relative to the current window to be inserted.
func (b *SequenceBuffer[T]) Insert(sequence uint16) *T {
	if bitpack.SequenceLessThan(sequence, b.sequence-uint16(b.size)) {
		return nil
	}
	if bitpack.SequenceGreaterThan(sequence+1, b.sequence) {
		b.removeEntries(int(b.sequence), int(sequence))
		b.sequence = sequence + 1
	}
	index := b.index(sequence)
	b.entrySeq[index] = uint32(sequence)
	var zero T
	b.entries[index] = zero
	return &b.entries[index]
}

// Remove clears the slot for sequence, if occupied.
func (b *SequenceBuffer[T]) Remove(sequence uint16) {
	b.entrySeq[b.index(sequence)] = emptySlot
}

// Available reports whether sequence's slot is empty.
func (b *SequenceBuffer[T]) Available(sequence uint16) bool {
	return b.entrySeq[b.index(sequence)] == emptySlot
}

// Exists reports whether sequence's slot holds the entry inserted at that
// exact sequence (not a stale entry left by a wraparound reuse of the slot).
func (b *SequenceBuffer[T]) Exists(sequence uint16) bool {
	return b.entrySeq[b.index(sequence)] == uint32(sequence)
}

// Occupant reports the sequence currently occupying sequence's slot and
// whether that slot is occupied at all, regardless of whether the
// occupant equals sequence. Lets a caller reject a sequence whose slot
// is held by a different, still-live sequence before calling Insert,
// which would otherwise silently overwrite it.
func (b *SequenceBuffer[T]) Occupant(sequence uint16) (uint16, bool) {
	index := b.index(sequence)
	if b.entrySeq[index] == emptySlot {
		return 0, false
	}
	return uint16(b.entrySeq[index]), true
}

// Find returns a pointer to the entry at sequence, or nil if absent.
func (b *SequenceBuffer[T]) Find(sequence uint16) *T {
	index := b.index(sequence)
	if b.entrySeq[index] == uint32(sequence) {
		return &b.entries[index]
	}
	return nil
}

// GetAtIndex returns the entry stored at the raw ring index, along with
// its sequence number and whether that slot is occupied.
func (b *SequenceBuffer[T]) GetAtIndex(index int) (*T, uint16, bool) {
	if b.entrySeq[index] == emptySlot {
		return nil, 0, false
	}
	return &b.entries[index], uint16(b.entrySeq[index]), true
}

// GetSequence returns the current (next-to-be-inserted) sequence number.
func (b *SequenceBuffer[T]) GetSequence() uint16 { return b.sequence }

// GetSize returns the number of slots in the ring.
func (b *SequenceBuffer[T]) GetSize() int { return b.size }

func (b *SequenceBuffer[T]) removeEntries(start, finish int) {
	if finish < start {
		finish += 65536
	}
	if finish-start >= b.size {
		// Entire window turned over at once; clearing it all is cheaper
		// and correct than walking every slot individually.
		for i := range b.entrySeq {
			b.entrySeq[i] = emptySlot
		}
		return
	}
	for seq := start; seq <= finish; seq++ {
		b.entrySeq[b.index(uint16(seq))] = emptySlot
	}
}
