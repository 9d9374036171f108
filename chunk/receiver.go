package chunk

import "time"

// Receiver assembles slices of one chunk at a time and emits rate-limited
// ack packets, including a forced re-ack of the previous chunk when the
// sender's chunk-id advance suggests its final all-acked packet was lost.
type Receiver struct {
	receiving              bool
	readyToRead            bool
	forceAckPreviousChunk  bool
	previousChunkNumSlices int
	chunkID                uint16
	chunkSize              int
	numSlices              int
	numReceived            int
	timeLastAckSent        time.Time
	received               []bool
	data                   []byte
}

func NewReceiver() *Receiver {
	return &Receiver{}
}

// ProcessSlicePacket feeds one received slice into the in-progress chunk.
// Slices are rejected silently once a completed chunk is waiting to be
// read (without mutating state), or if they don't match the chunk
// currently being assembled; a rejected slice of the previous chunk that
// arrives while no chunk is being assembled still schedules a forced
// re-ack of that chunk.
func (r *Receiver) ProcessSlicePacket(p *SlicePacket, now time.Time) {
	if r.readyToRead {
		return
	}

	if !r.receiving && p.ChunkID == r.chunkID-1 && r.previousChunkNumSlices > 0 {
		r.forceAckPreviousChunk = true
	}

	if !r.receiving && p.ChunkID == r.chunkID {
		r.receiving = true
		r.numSlices = p.NumSlices
		r.numReceived = 0
		r.received = make([]bool, p.NumSlices)
		r.data = make([]byte, p.NumSlices*SliceSize)
	}

	if !r.receiving || p.ChunkID != r.chunkID || p.NumSlices != r.numSlices {
		return
	}

	if r.received[p.SliceID] {
		return
	}

	copy(r.data[p.SliceID*SliceSize:], p.Data)
	r.received[p.SliceID] = true
	r.numReceived++

	if p.SliceID == r.numSlices-1 {
		r.chunkSize = (r.numSlices-1)*SliceSize + p.SliceBytes
	}

	if r.numReceived == r.numSlices {
		r.receiving = false
		r.readyToRead = true
		r.previousChunkNumSlices = r.numSlices
		r.chunkID++
	}
}

// GenerateAckPacket returns a rate-limited ack for whatever this receiver
// currently needs acked: a forced re-ack of the previous (fully received)
// chunk first, otherwise the in-progress chunk's partial ack bitmap.
func (r *Receiver) GenerateAckPacket(now time.Time) (*AckPacket, bool) {
	if !r.timeLastAckSent.IsZero() && now.Sub(r.timeLastAckSent) < MinimumTimeBetweenAcks {
		return nil, false
	}

	if r.forceAckPreviousChunk {
		acked := make([]bool, r.previousChunkNumSlices)
		for i := range acked {
			acked[i] = true
		}
		r.forceAckPreviousChunk = false
		r.timeLastAckSent = now
		return &AckPacket{ChunkID: r.chunkID - 1, NumSlices: r.previousChunkNumSlices, Acked: acked}, true
	}

	if r.receiving {
		r.timeLastAckSent = now
		return &AckPacket{ChunkID: r.chunkID, NumSlices: r.numSlices, Acked: append([]bool(nil), r.received...)}, true
	}

	return nil, false
}

// ReadChunk returns the fully assembled chunk and clears readyToRead, or
// reports false if no chunk is ready.
func (r *Receiver) ReadChunk() ([]byte, bool) {
	if !r.readyToRead {
		return nil, false
	}
	r.readyToRead = false
	out := r.data[:r.chunkSize]
	return out, true
}
