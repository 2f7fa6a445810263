package isobmff

import (
	"encoding/binary"
	"testing"

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

func TestSplitLengthPrefixed_RoundTrip(t *testing.T) {
	nalus := [][]byte{{0x67, 0x01}, {0x68, 0x02, 0x03}}
	packed := lengthPrefixed(nalus...)
	got := splitLengthPrefixed(packed)
	assert.Equal(t, nalus, got)
}

func TestExtractParam_SelectsByIndex(t *testing.T) {
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}
	packed := lengthPrefixed(sps, pps)

	assert.Equal(t, sps, extractParam(packed, 0))
	assert.Equal(t, pps, extractParam(packed, 1))
	assert.Nil(t, extractParam(packed, 2))
}

func TestSampleEntryFourCC(t *testing.T) {
	assert.Equal(t, "avc1", sampleEntryFourCC(model.CodecH264))
	assert.Equal(t, "hev1", sampleEntryFourCC(model.CodecH265))
	assert.Equal(t, "mp4a", sampleEntryFourCC(model.CodecAAC))
	assert.Equal(t, "", sampleEntryFourCC(model.CodecWebVTT))
}

func TestBuilder_Initialize_RejectsInvalidStreamInfo(t *testing.T) {
	b := NewBuilder()
	status := b.Initialize([]model.StreamInfo{{TrackID: 0, Codec: model.CodecH264}}, nil)
	assert.False(t, status.Ok())
}

func TestBuilder_Initialize_RejectsUnmappableCodec(t *testing.T) {
	b := NewBuilder()
	status := b.Initialize([]model.StreamInfo{{
		TrackID: 1, Timescale: 90000, Codec: model.CodecTTML, Kind: model.KindText,
	}}, nil)
	assert.False(t, status.Ok())
}

func TestBuilder_AddSample_UnknownTrackFails(t *testing.T) {
	b := NewBuilder()
	status := b.AddSample(7, model.MediaSample{})
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeNotFound, status.Code())
}

func TestBuilder_Initialize_SetsUpEncryptionEngine(t *testing.T) {
	b := NewBuilder()
	sps := []byte{0x67, 0x42, 0xC0, 0x1E}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}
	streams := []model.StreamInfo{{
		TrackID:     1,
		Timescale:   90000,
		Codec:       model.CodecH264,
		Kind:        model.KindVideo,
		Video:       model.VideoInfo{Width: 1920, Height: 1080},
		CodecConfig: lengthPrefixed(sps, pps),
	}}
	enc := map[int]model.EncryptionConfig{
		1: {KeyID: [16]byte{1}, Key: [16]byte{2}, IV: make([]byte, 8), Scheme: model.ProtectionCENC},
	}

	status := b.Initialize(streams, enc)
	require.True(t, status.Ok())
	assert.True(t, b.tracks[1].encrypted)
}
