package packedaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/livepackager/internal/model"
)

func TestEncodeSynchsafe(t *testing.T) {
	assert.Equal(t, uint32(0x7F), encodeSynchsafe(0x7F))
	// 0x80 does not fit in 7 bits; it spills into the next synchsafe byte.
	assert.Equal(t, uint32(0x0100), encodeSynchsafe(0x80))
}

func TestEncodeTimestamp_MasksTo33Bits(t *testing.T) {
	out := encodeTimestamp(-1)
	require.Len(t, out, 8)
	// only the low 33 bits may be set.
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0xFF, 0xFF, 0xFF, 0xFF}, out)
}

func TestID3Tag_Encode_HeaderAndFrameLayout(t *testing.T) {
	tag := &id3Tag{}
	tag.addPrivateFrame(timestampOwnerIdentifier, encodeTimestamp(90000))

	out, status := tag.encode()
	require.True(t, status.Ok())

	assert.Equal(t, "ID3", string(out[0:3]))
	assert.Equal(t, byte(0x04), out[3])
	assert.Equal(t, byte(0x00), out[4])
	assert.Equal(t, byte(0x00), out[5]) // flags

	frameStart := 10
	assert.Equal(t, "PRIV", string(out[frameStart:frameStart+4]))

	ownerStart := frameStart + 10
	owner := string(out[ownerStart : ownerStart+len(timestampOwnerIdentifier)])
	assert.Equal(t, timestampOwnerIdentifier, owner)
	assert.Equal(t, byte(0), out[ownerStart+len(timestampOwnerIdentifier)])
}

func TestID3Tag_Encode_TwoFrames(t *testing.T) {
	tag := &id3Tag{}
	tag.addPrivateFrame(timestampOwnerIdentifier, encodeTimestamp(1000))
	tag.addPrivateFrame(audioDescriptionOwnerIdentifier, []byte("mp4a\x01\x02"))

	out, status := tag.encode()
	require.True(t, status.Ok())

	assert.Contains(t, string(out), timestampOwnerIdentifier)
	assert.Contains(t, string(out), audioDescriptionOwnerIdentifier)
}

func TestBuildAudioDescription_PrependsCodecTag(t *testing.T) {
	out, status := buildAudioDescription(model.CodecAAC, []byte{0x12, 0x34})
	require.True(t, status.Ok())
	assert.Equal(t, []byte{'m', 'p', '4', 'a', 0x12, 0x34}, out)
}

func TestBuildAudioDescription_RejectsUnsupportedCodec(t *testing.T) {
	_, status := buildAudioDescription(model.CodecOpus, nil)
	assert.False(t, status.Ok())
}
