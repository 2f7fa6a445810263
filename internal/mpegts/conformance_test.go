package mpegts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/livepackager/internal/model"
)

// TestTSSegment_PATPMTConformance cross-checks a Segmenter-produced TS
// segment with go-astits, a demuxer wholly independent of mediacommon's own
// mpegts.Writer, to catch PAT/PMT bugs mediacommon's own decoder would not.
func TestTSSegment_PATPMTConformance(t *testing.T) {
	var buf bytes.Buffer
	streams := []model.StreamInfo{h264StreamInfo(1), aacStreamInfo(2)}
	s, status := NewSegmenter(&buf, streams, nil, Config{})
	require.True(t, status.Ok())

	status = s.WriteSample(1, model.MediaSample{
		IsKeyFrame: true,
		Payload:    lengthPrefixed([]byte{0x65, 0x88, 0x84, 0x00}),
	})
	require.True(t, status.Ok())

	report, status := CheckConformance(bytes.NewReader(buf.Bytes()))
	require.True(t, status.Ok())

	assert.EqualValues(t, 1, report.ProgramNumber)
	assert.NotZero(t, report.ProgramMapPID)
	assert.Contains(t, report.ElementaryPIDs, uint16(videoPIDBase))
	assert.Contains(t, report.ElementaryPIDs, uint16(audioPIDBase))
	assert.EqualValues(t, videoPIDBase, report.PCRPID)
}

func TestCheckConformance_EmptyInputFails(t *testing.T) {
	_, status := CheckConformance(bytes.NewReader(nil))
	assert.False(t, status.Ok())
}
