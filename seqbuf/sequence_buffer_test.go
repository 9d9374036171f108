package seqbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type entry struct {
	value int
}

func TestSequenceBufferInsertAndFind(t *testing.T) {
	buf := NewSequenceBuffer[entry](16)
	e := buf.Insert(10)
	require.NotNil(t, e)
	e.value = 42

	found := buf.Find(10)
	require.NotNil(t, found)
	require.Equal(t, 42, found.value)
	require.True(t, buf.Exists(10))
	require.False(t, buf.Available(10))
}

func TestSequenceBufferAdvanceEvictsOldEntries(t *testing.T) {
	buf := NewSequenceBuffer[entry](8)
	for i := uint16(0); i < 8; i++ {
		buf.Insert(i)
	}
	// Advancing past the window must evict every slot it passes over.
	buf.Insert(8)
	require.False(t, buf.Exists(0))
	require.True(t, buf.Exists(8))
	for i := uint16(1); i < 8; i++ {
		require.True(t, buf.Exists(i))
	}
}

func TestSequenceBufferLargeJumpClearsWholeWindow(t *testing.T) {
	buf := NewSequenceBuffer[entry](8)
	buf.Insert(0)
	buf.Insert(1000)
	require.False(t, buf.Exists(0))
	require.True(t, buf.Exists(1000))
	for i := 993; i < 1000; i++ {
		require.False(t, buf.Exists(uint16(i)))
	}
}

func TestSequenceBufferRejectsStaleSequence(t *testing.T) {
	buf := NewSequenceBuffer[entry](8)
	for i := uint16(0); i < 20; i++ {
		buf.Insert(i)
	}
	require.Nil(t, buf.Insert(5))
}

func TestSequenceBufferWraparound(t *testing.T) {
	buf := NewSequenceBuffer[entry](8)
	var seq uint16 = 65530
	for i := 0; i < 12; i++ {
		buf.Insert(seq)
		seq++
	}
	require.True(t, buf.Exists(65535))
	require.True(t, buf.Exists(4))
	require.False(t, buf.Exists(65530))
}

func TestBitArraySetClearAllSet(t *testing.T) {
	a := NewBitArray(10)
	require.False(t, a.AllSet(10))
	for i := 0; i < 10; i++ {
		a.SetBit(i)
	}
	require.True(t, a.AllSet(10))
	require.Equal(t, 10, a.CountSet(10))
	a.ClearBit(3)
	require.False(t, a.AllSet(10))
	require.Equal(t, 9, a.CountSet(10))
}
