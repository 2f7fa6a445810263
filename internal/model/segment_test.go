package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentBuffer_InitAndMediaViews(t *testing.T) {
	buf := NewSegmentBuffer()

	_, err := buf.Write([]byte("ftypmoov"))
	require.NoError(t, err)
	require.NoError(t, buf.MarkInitBoundary())

	_, err = buf.Write([]byte("styp moof mdat"))
	require.NoError(t, err)

	assert.Equal(t, []byte("ftypmoov"), buf.InitSegmentData())
	assert.Equal(t, 8, buf.InitSegmentSize())
	assert.Equal(t, []byte("styp moof mdat"), buf.SegmentData())
	assert.Equal(t, len("styp moof mdat"), buf.SegmentSize())
	assert.Equal(t, buf.InitSegmentSize()+buf.SegmentSize(), buf.Size())
}

func TestSegmentBuffer_DoubleMarkFails(t *testing.T) {
	buf := NewSegmentBuffer()
	require.NoError(t, buf.MarkInitBoundary())
	assert.Error(t, buf.MarkInitBoundary())
}

func TestSegmentBuffer_NoMarkMeansAllMedia(t *testing.T) {
	buf := NewSegmentBuffer()
	_, _ = buf.Write([]byte("abcdef"))
	assert.Equal(t, 0, buf.InitSegmentSize())
	assert.Equal(t, []byte("abcdef"), buf.SegmentData())
}
