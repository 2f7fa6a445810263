package mpegts

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/livepackager/internal/model"
)

func lengthPrefixed(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = binary.BigEndian.AppendUint32(out, uint32(len(p)))
		out = append(out, p...)
	}
	return out
}

func aacStreamInfo(trackID int) model.StreamInfo {
	asc := mpeg4audio.AudioSpecificConfig{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: 48000, ChannelCount: 2}
	config, err := asc.Marshal()
	if err != nil {
		panic(err)
	}
	return model.StreamInfo{
		TrackID:     trackID,
		Timescale:   90000,
		Kind:        model.KindAudio,
		Codec:       model.CodecAAC,
		CodecConfig: config,
		Audio:       model.AudioInfo{SampleRate: 48000, ChannelCount: 2},
	}
}

func h264StreamInfo(trackID int) model.StreamInfo {
	sps := []byte{0x67, 0x42, 0xC0, 0x1E, 0x00}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}
	return model.StreamInfo{
		TrackID:     trackID,
		Timescale:   90000,
		Kind:        model.KindVideo,
		Codec:       model.CodecH264,
		CodecConfig: lengthPrefixed(sps, pps),
		Video:       model.VideoInfo{Width: 1920, Height: 1080},
	}
}

func TestExtractParam_SelectsByIndex(t *testing.T) {
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}
	packed := lengthPrefixed(sps, pps)
	assert.Equal(t, sps, extractParam(packed, 0))
	assert.Equal(t, pps, extractParam(packed, 1))
	assert.Nil(t, extractParam(packed, 2))
}

func TestVideoParamCache_PrependsOnlyOnKeyframe(t *testing.T) {
	v := newVideoParamCache()
	v.setFromCodecConfig(false, lengthPrefixed([]byte{0x67, 1}, []byte{0x68, 2}))

	slice := []byte{0x41, 0xAA}
	assert.Equal(t, [][]byte{slice}, v.prepend([][]byte{slice}, false, false))

	got := v.prepend([][]byte{slice}, true, false)
	require.Len(t, got, 3)
	assert.Equal(t, []byte{0x67, 1}, got[0])
	assert.Equal(t, []byte{0x68, 2}, got[1])
	assert.Equal(t, slice, got[2])
}

func TestNewSegmenter_RejectsNegativeOffset(t *testing.T) {
	var buf bytes.Buffer
	_, status := NewSegmenter(&buf, []model.StreamInfo{h264StreamInfo(1)}, nil, Config{M2TSOffsetMs: -1})
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeMuxerFailure, status.Code())
}

func TestNewSegmenter_RejectsInvalidStreamInfo(t *testing.T) {
	var buf bytes.Buffer
	_, status := NewSegmenter(&buf, []model.StreamInfo{{TrackID: 0, Codec: model.CodecH264}}, nil, Config{})
	assert.False(t, status.Ok())
}

func TestNewSegmenter_RejectsUnmappableCodec(t *testing.T) {
	var buf bytes.Buffer
	streams := []model.StreamInfo{{
		TrackID: 1, Timescale: 90000, Kind: model.KindText, Codec: model.CodecTTML,
	}}
	_, status := NewSegmenter(&buf, streams, nil, Config{})
	assert.False(t, status.Ok())
}

func TestSegmenter_WriteSample_UnknownTrackFails(t *testing.T) {
	var buf bytes.Buffer
	s, status := NewSegmenter(&buf, []model.StreamInfo{h264StreamInfo(1)}, nil, Config{})
	require.True(t, status.Ok())

	status = s.WriteSample(99, model.MediaSample{})
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeNotFound, status.Code())
}

func TestSegmenter_WriteSample_ProducesTSPackets(t *testing.T) {
	var buf bytes.Buffer
	streams := []model.StreamInfo{h264StreamInfo(1), aacStreamInfo(2)}
	s, status := NewSegmenter(&buf, streams, nil, Config{})
	require.True(t, status.Ok())

	videoSample := model.MediaSample{
		PTS: 0, DTS: 0, Duration: 3000, IsKeyFrame: true,
		Payload: lengthPrefixed([]byte{0x65, 0x88, 0x84, 0x00}),
	}
	status = s.WriteSample(1, videoSample)
	require.True(t, status.Ok())

	audioSample := model.MediaSample{PTS: 0, DTS: 0, Duration: 1920, Payload: []byte{0x21, 0x10, 0x04, 0x60, 0x8c, 0x1c}}
	status = s.WriteSample(2, audioSample)
	require.True(t, status.Ok())

	assert.Greater(t, buf.Len(), 0)
	assert.Equal(t, 0, buf.Len()%188)
}

func TestSegmenter_WriteSample_RejectsNegativeResultingTimestamp(t *testing.T) {
	var buf bytes.Buffer
	s, status := NewSegmenter(&buf, []model.StreamInfo{h264StreamInfo(1)}, nil, Config{})
	require.True(t, status.Ok())

	status = s.WriteSample(1, model.MediaSample{PTS: -1, DTS: -1, Payload: lengthPrefixed([]byte{0x65})})
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeMuxerFailure, status.Code())
}

func TestSegmenter_EncryptedTrack_SampleAESEnvelope(t *testing.T) {
	var buf bytes.Buffer
	encryption := map[int]model.EncryptionConfig{
		1: {KeyID: [16]byte{1}, Key: [16]byte{2}, IV: make([]byte, 16), Scheme: model.ProtectionCBCS},
	}
	s, status := NewSegmenter(&buf, []model.StreamInfo{h264StreamInfo(1)}, encryption, Config{})
	require.True(t, status.Ok())
	require.True(t, s.tracks[1].encrypted)

	payload := lengthPrefixed(bytes.Repeat([]byte{0x65}, 64))
	out := s.applySampleAES(s.tracks[1], payload)
	assert.Equal(t, payload[:sampleAESHeaderLen], out[:sampleAESHeaderLen])
	assert.NotEqual(t, payload[sampleAESHeaderLen:], out[sampleAESHeaderLen:])
}
