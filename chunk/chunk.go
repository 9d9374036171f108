// Package chunk implements a standalone block-streaming sub-protocol:
// one sender streams a single in-flight chunk as fixed-size slices with
// per-slice resend timers, while a receiver assembles slices and emits
// rate-limited selective-ack packets back. It is independently usable
// (and independently testable) against its own wire packets, and its
// state shape doubles as the model for the reliable channel's internal
// block send/receive state.
package chunk

import (
	"errors"
	"time"

	"netcore/bitpack"
)

const (
	SliceSize              = 1024
	MaxSlicesPerChunk       = 32
	MaxChunkSize            = SliceSize * MaxSlicesPerChunk
	SliceMinimumResendTime  = 100 * time.Millisecond
	MinimumTimeBetweenAcks  = 100 * time.Millisecond
)

var (
	ErrChunkTooLarge  = errors.New("chunk: exceeds MaxChunkSize")
	ErrAlreadySending = errors.New("chunk: a chunk is already in flight")
)

// SlicePacket carries one slice of a chunk.
type SlicePacket struct {
	ChunkID    uint16
	SliceID    int
	NumSlices  int
	SliceBytes int // only meaningful (and serialized) on the last slice
	Data       []byte
}

func (p *SlicePacket) Serialize(s *bitpack.Stream) error {
	chunkID := uint32(p.ChunkID)
	if err := s.SerializeBits(&chunkID, 16); err != nil {
		return err
	}
	sliceID := int32(p.SliceID)
	if err := s.SerializeInteger(&sliceID, 0, MaxSlicesPerChunk-1); err != nil {
		return err
	}
	numSlices := int32(p.NumSlices)
	if err := s.SerializeInteger(&numSlices, 1, MaxSlicesPerChunk); err != nil {
		return err
	}

	isLast := int(sliceID) == int(numSlices)-1
	sliceBytes := int32(p.SliceBytes)
	if isLast {
		if err := s.SerializeInteger(&sliceBytes, 1, SliceSize); err != nil {
			return err
		}
	} else {
		sliceBytes = SliceSize
	}

	if s.IsReading() {
		p.Data = make([]byte, sliceBytes)
	}
	if err := s.SerializeBytes(p.Data); err != nil {
		return err
	}

	if s.IsReading() {
		p.ChunkID = uint16(chunkID)
		p.SliceID = int(sliceID)
		p.NumSlices = int(numSlices)
		p.SliceBytes = int(sliceBytes)
	}
	return nil
}

// AckPacket carries a full acked-bitmap for one chunk.
type AckPacket struct {
	ChunkID   uint16
	NumSlices int
	Acked     []bool
}

func (p *AckPacket) Serialize(s *bitpack.Stream) error {
	chunkID := uint32(p.ChunkID)
	if err := s.SerializeBits(&chunkID, 16); err != nil {
		return err
	}
	numSlices := int32(p.NumSlices)
	if err := s.SerializeInteger(&numSlices, 1, MaxSlicesPerChunk); err != nil {
		return err
	}
	if s.IsReading() {
		p.Acked = make([]bool, numSlices)
	}
	for i := range p.Acked {
		if err := s.SerializeBool(&p.Acked[i]); err != nil {
			return err
		}
	}
	if s.IsReading() {
		p.ChunkID = uint16(chunkID)
		p.NumSlices = int(numSlices)
	}
	return nil
}
