package codecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAC3Sync(t *testing.T) {
	data := []byte{0x0B, 0x77, 0x00, 0x00, 0x00, 0x40, 0x40, 0x00}

	info, status := ParseAC3Sync(data)
	require.True(t, status.Ok())
	assert.Equal(t, 48000, info.SampleRate)
	assert.Equal(t, 128, info.FrameSizeBytes())
	assert.Equal(t, 2, info.ChannelCount())
}

func TestParseAC3Sync_RejectsBadSyncword(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, status := ParseAC3Sync(data)
	assert.False(t, status.Ok())
}

func TestParseAC3Sync_RejectsShortInput(t *testing.T) {
	_, status := ParseAC3Sync([]byte{0x0B, 0x77})
	assert.False(t, status.Ok())
}

func TestAC3SpecificBox_ProducesThreeBytes(t *testing.T) {
	data := []byte{0x0B, 0x77, 0x00, 0x00, 0x00, 0x40, 0x40, 0x00}
	info, status := ParseAC3Sync(data)
	require.True(t, status.Ok())
	assert.Len(t, info.AC3SpecificBox(), 3)
}
