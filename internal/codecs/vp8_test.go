package codecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vp8KeyframeHeader(width, height int) []byte {
	data := make([]byte, 10)
	data[0] = 0x10 // bit0=0 marks a keyframe
	data[3], data[4], data[5] = vp8SyncCode[0], vp8SyncCode[1], vp8SyncCode[2]
	data[6] = byte(width & 0xFF)
	data[7] = byte(width >> 8)
	data[8] = byte(height & 0xFF)
	data[9] = byte(height >> 8)
	return data
}

func TestIsVP8Keyframe(t *testing.T) {
	assert.True(t, IsVP8Keyframe(vp8KeyframeHeader(1920, 1080)))
	assert.False(t, IsVP8Keyframe([]byte{0x00, 0x00, 0x00}))
}

func TestParseVP8Keyframe(t *testing.T) {
	h, status := ParseVP8Keyframe(vp8KeyframeHeader(1920, 1080))
	require.True(t, status.Ok())
	assert.Equal(t, 1920, h.Width)
	assert.Equal(t, 1080, h.Height)
}

func TestParseVP8Keyframe_RejectsInterFrame(t *testing.T) {
	data := vp8KeyframeHeader(640, 480)
	data[0] |= 0x01 // clear the keyframe bit
	_, status := ParseVP8Keyframe(data)
	assert.False(t, status.Ok())
}

func TestVPCodecConfigurationRecord_Length(t *testing.T) {
	h := VP8Header{Profile: 0, Width: 1920, Height: 1080}
	record := h.VPCodecConfigurationRecord(8, 1)
	assert.Len(t, record, 8)
}
