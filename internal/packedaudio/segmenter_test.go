package packedaudio

import (
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/livepackager/internal/model"
)

func aacStreamInfo(t *testing.T) model.StreamInfo {
	t.Helper()
	asc := mpeg4audio.AudioSpecificConfig{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: 48000, ChannelCount: 2}
	config, err := asc.Marshal()
	require.NoError(t, err)
	return model.StreamInfo{
		TrackID:     1,
		Timescale:   48000,
		Kind:        model.KindAudio,
		Codec:       model.CodecAAC,
		CodecConfig: config,
		Audio:       model.AudioInfo{SampleRate: 48000, ChannelCount: 2},
	}
}

func ac3StreamInfo() model.StreamInfo {
	return model.StreamInfo{
		TrackID:     1,
		Timescale:   90000,
		Kind:        model.KindAudio,
		Codec:       model.CodecAC3,
		CodecConfig: []byte{0xAA, 0xBB},
		Audio:       model.AudioInfo{SampleRate: 48000, ChannelCount: 6},
	}
}

func TestNewSegmenter_RejectsNonAudioStream(t *testing.T) {
	_, status := NewSegmenter(model.StreamInfo{Kind: model.KindVideo, TrackID: 1, Timescale: 90000, Codec: model.CodecH264, Video: model.VideoInfo{Width: 1, Height: 1}}, Config{})
	assert.False(t, status.Ok())
}

func TestNewSegmenter_RejectsNegativeOffset(t *testing.T) {
	_, status := NewSegmenter(aacStreamInfo(t), Config{TransportStreamTimestampOffsetMs: -1})
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeMuxerFailure, status.Code())
}

func TestSegmenter_AddSample_WrapsAACInADTS(t *testing.T) {
	s, status := NewSegmenter(aacStreamInfo(t), Config{})
	require.True(t, status.Ok())

	raw := []byte{0x21, 0x10, 0x04, 0x60}
	status = s.AddSample(model.MediaSample{PTS: 0, Payload: raw})
	require.True(t, status.Ok())

	out, status := s.FinalizeSegment()
	require.True(t, status.Ok())

	// ID3 header (10 bytes) + frame block, then a 7-byte ADTS header + raw payload.
	assert.Equal(t, "ID3", string(out[0:3]))
	adtsOffset := len(out) - (7 + len(raw))
	assert.Equal(t, byte(0xFF), out[adtsOffset])
	assert.Equal(t, raw, out[len(out)-len(raw):])
}

func TestSegmenter_FinalizeSegment_WithoutSampleFails(t *testing.T) {
	s, status := NewSegmenter(aacStreamInfo(t), Config{})
	require.True(t, status.Ok())

	_, status = s.FinalizeSegment()
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeChunkingError, status.Code())
}

func TestSegmenter_RejectsNegativeResultingTimestamp(t *testing.T) {
	s, status := NewSegmenter(aacStreamInfo(t), Config{})
	require.True(t, status.Ok())

	status = s.AddSample(model.MediaSample{PTS: -1, Payload: []byte{0, 0, 0, 0}})
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeMuxerFailure, status.Code())
}

func TestSegmenter_MultipleSamplesShareOneID3Tag(t *testing.T) {
	s, status := NewSegmenter(aacStreamInfo(t), Config{})
	require.True(t, status.Ok())

	status = s.AddSample(model.MediaSample{PTS: 0, Payload: []byte{1, 2, 3, 4}})
	require.True(t, status.Ok())
	status = s.AddSample(model.MediaSample{PTS: 960, Payload: []byte{5, 6, 7, 8}})
	require.True(t, status.Ok())

	out, status := s.FinalizeSegment()
	require.True(t, status.Ok())

	assert.Equal(t, 1, countOccurrences(string(out), "ID3"))
}

func TestSegmenter_SegmentBoundariesReopenID3Tag(t *testing.T) {
	s, status := NewSegmenter(aacStreamInfo(t), Config{})
	require.True(t, status.Ok())

	require.True(t, s.AddSample(model.MediaSample{PTS: 0, Payload: []byte{1, 2, 3, 4}}).Ok())
	first, status := s.FinalizeSegment()
	require.True(t, status.Ok())

	require.True(t, s.AddSample(model.MediaSample{PTS: 960, Payload: []byte{5, 6, 7, 8}}).Ok())
	second, status := s.FinalizeSegment()
	require.True(t, status.Ok())

	assert.Equal(t, "ID3", string(first[0:3]))
	assert.Equal(t, "ID3", string(second[0:3]))
}

func TestSegmenter_EncryptedTrack_CapturesAudioDescriptionOnce(t *testing.T) {
	s, status := NewSegmenter(aacStreamInfo(t), Config{Encrypted: true})
	require.True(t, status.Ok())

	require.True(t, s.AddSample(model.MediaSample{PTS: 0, Payload: []byte{1, 2, 3, 4}}).Ok())
	out, status := s.FinalizeSegment()
	require.True(t, status.Ok())
	assert.Contains(t, string(out), audioDescriptionOwnerIdentifier)
	require.NotNil(t, s.audioDescription)
	captured := s.audioDescription

	require.True(t, s.AddSample(model.MediaSample{PTS: 960, Payload: []byte{9, 9, 9, 9}}).Ok())
	_, status = s.FinalizeSegment()
	require.True(t, status.Ok())
	assert.Equal(t, captured, s.audioDescription)
}

func TestSegmenter_AC3_UsesSyncframePrefixAsAudioDescription(t *testing.T) {
	s, status := NewSegmenter(ac3StreamInfo(), Config{Encrypted: true})
	require.True(t, status.Ok())

	sample := make([]byte, 20)
	for i := range sample {
		sample[i] = byte(i + 1)
	}
	status = s.AddSample(model.MediaSample{PTS: 0, Payload: sample})
	require.True(t, status.Ok())

	require.NotNil(t, s.audioDescription)
	assert.Equal(t, "ac-3", string(s.audioDescription[0:4]))
	assert.Equal(t, sample[:ac3SetupDataSize], s.audioDescription[4:])
}

func TestSegmenter_AC3_TooSmallForSetupDataFails(t *testing.T) {
	s, status := NewSegmenter(ac3StreamInfo(), Config{Encrypted: true})
	require.True(t, status.Ok())

	status = s.AddSample(model.MediaSample{PTS: 0, Payload: []byte{1, 2, 3}})
	assert.False(t, status.Ok())
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}
