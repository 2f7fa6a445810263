package packager

import (
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	"github.com/jmylchreest/livepackager/internal/model"
)

// parseMedia unmarshals an fMP4 media segment (one or more moof/mdat parts)
// into per-track MediaSample slices in DTS order, accumulating each track's
// running base time the way internal/isobmff.Builder does when it writes
// them back out.
func parseMedia(mediaBytes []byte) (map[int][]model.MediaSample, model.Status) {
	var parts fmp4.Parts
	if err := parts.Unmarshal(mediaBytes); err != nil {
		return nil, model.Wrap(model.CodeParserFailure, "unmarshaling media segment", err)
	}

	out := make(map[int][]model.MediaSample)
	for _, part := range parts {
		for _, track := range part.Tracks {
			dts := int64(track.BaseTime)
			for _, sample := range track.Samples {
				pts := dts + int64(sample.PTSOffset)
				out[track.ID] = append(out[track.ID], model.MediaSample{
					DTS:        dts,
					PTS:        pts,
					Duration:   sample.Duration,
					IsKeyFrame: !sample.IsNonSyncSample,
					Payload:    sample.Payload,
				})
				dts += int64(sample.Duration)
			}
		}
	}
	return out, model.OK
}
