package packager

import (
	"bytes"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/livepackager/internal/isobmff"
	"github.com/jmylchreest/livepackager/internal/model"
)

func aacStreamInfo(trackID int) model.StreamInfo {
	asc := mpeg4audio.AudioSpecificConfig{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: 48000, ChannelCount: 2}
	config, err := asc.Marshal()
	if err != nil {
		panic(err)
	}
	return model.StreamInfo{
		TrackID:     trackID,
		Timescale:   48000,
		Kind:        model.KindAudio,
		Codec:       model.CodecAAC,
		CodecConfig: config,
		Audio:       model.AudioInfo{SampleRate: 48000, ChannelCount: 2},
	}
}

// aacFixture builds a real init segment plus one media segment for a single
// AAC track via internal/isobmff.Builder, giving the façade tests below
// genuine fMP4 bytes to parse instead of hand-rolled box literals.
func aacFixture(t *testing.T) (initBytes, mediaBytes []byte) {
	t.Helper()
	info := aacStreamInfo(1)

	b := isobmff.NewBuilder()
	require.True(t, b.Initialize([]model.StreamInfo{info}, nil).Ok())

	var initBuf bytes.Buffer
	require.True(t, b.FinalizeInit(&initBuf).Ok())

	require.True(t, b.AddSample(1, model.MediaSample{
		PTS: 0, DTS: 0, Duration: 1024, IsKeyFrame: true,
		Payload: []byte{0x21, 0x10, 0x04, 0x60, 0x8c, 0x1c},
	}).Ok())
	require.True(t, b.AddSample(1, model.MediaSample{
		PTS: 1024, DTS: 1024, Duration: 1024, IsKeyFrame: true,
		Payload: []byte{0x21, 0x10, 0x04, 0x60, 0x8c, 0x1c},
	}).Ok())

	var mediaBuf bytes.Buffer
	require.True(t, b.FinalizeSegment(&mediaBuf).Ok())

	return initBuf.Bytes(), mediaBuf.Bytes()
}

func TestSelectTrack_NotFoundWhenNoMatch(t *testing.T) {
	_, status := selectTrack(nil, model.KindAudio)
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeNotFound, status.Code())
}

func TestSelectTrack_ReturnsSoleMatch(t *testing.T) {
	want := aacStreamInfo(3)
	got, status := selectTrack([]model.StreamInfo{want}, model.KindAudio)
	require.True(t, status.Ok())
	assert.Equal(t, want.TrackID, got.TrackID)
}

func TestSelectTrack_RejectsMultipleMatches(t *testing.T) {
	streams := []model.StreamInfo{aacStreamInfo(1), aacStreamInfo(2)}
	_, status := selectTrack(streams, model.KindAudio)
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeInvalidArgument, status.Code())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, status := New(Config{TrackType: model.KindAudio, SegmentDurationSec: -1}, nil)
	assert.False(t, status.Ok())
}

func TestNew_AssignsCorrelationID(t *testing.T) {
	p, status := New(Config{Format: FormatFMP4, TrackType: model.KindAudio}, nil)
	require.True(t, status.Ok())
	assert.NotEmpty(t, p.ID())
}

func TestLivePackager_PackageInit_FMP4_StartsWithFtyp(t *testing.T) {
	initBytes, _ := aacFixture(t)

	p, status := New(Config{Format: FormatFMP4, TrackType: model.KindAudio}, nil)
	require.True(t, status.Ok())

	buf, status := p.PackageInit(initBytes)
	require.True(t, status.Ok())
	require.Greater(t, buf.Size(), 8)
	assert.Equal(t, "ftyp", string(buf.Bytes()[4:8]))
}

func TestLivePackager_Package_FMP4_EmitsStypMoofMdat(t *testing.T) {
	initBytes, mediaBytes := aacFixture(t)

	p, status := New(Config{Format: FormatFMP4, TrackType: model.KindAudio, SegmentNumber: 7}, nil)
	require.True(t, status.Ok())

	buf, status := p.Package(initBytes, mediaBytes)
	require.True(t, status.Ok())
	require.Greater(t, buf.Size(), 8)
	assert.Equal(t, "styp", string(buf.Bytes()[4:8]))
}

func TestLivePackager_Package_TS_ProducesPacketAlignedOutput(t *testing.T) {
	initBytes, mediaBytes := aacFixture(t)

	p, status := New(Config{Format: FormatTS, TrackType: model.KindAudio}, nil)
	require.True(t, status.Ok())

	buf, status := p.Package(initBytes, mediaBytes)
	require.True(t, status.Ok())
	assert.Greater(t, buf.Size(), 0)
	assert.Equal(t, 0, buf.Size()%188)
	assert.Equal(t, byte(0x47), buf.Bytes()[0])
}

func TestLivePackager_Package_PackedAudio_StartsWithID3(t *testing.T) {
	initBytes, mediaBytes := aacFixture(t)

	p, status := New(Config{Format: FormatPackedAudio, TrackType: model.KindAudio}, nil)
	require.True(t, status.Ok())

	buf, status := p.Package(initBytes, mediaBytes)
	require.True(t, status.Ok())
	assert.Greater(t, buf.Size(), 0)
	assert.Equal(t, "ID3", string(buf.Bytes()[0:3]))
}

func TestLivePackager_PackageInit_RejectsTimedTextFormat(t *testing.T) {
	p, status := New(Config{Format: FormatVTTMP4, TrackType: model.KindText}, nil)
	require.True(t, status.Ok())

	_, status = p.PackageInit([]byte{})
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeInvalidArgument, status.Code())
}

func TestLivePackager_Package_TrackTypeMismatchFailsWithNotFound(t *testing.T) {
	initBytes, mediaBytes := aacFixture(t)

	p, status := New(Config{Format: FormatFMP4, TrackType: model.KindVideo}, nil)
	require.True(t, status.Ok())

	_, status = p.Package(initBytes, mediaBytes)
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeNotFound, status.Code())
}
