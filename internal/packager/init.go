package packager

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/jmylchreest/livepackager/internal/codecs"
	"github.com/jmylchreest/livepackager/internal/model"
)

// parseInit unmarshals an fMP4 initialization segment into the StreamInfo
// set the rest of the façade operates on, one entry per track in init.Tracks
// order.
func parseInit(initBytes []byte) ([]model.StreamInfo, model.Status) {
	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(initBytes)); err != nil {
		return nil, model.Wrap(model.CodeParserFailure, "unmarshaling init segment", err)
	}

	streams := make([]model.StreamInfo, 0, len(init.Tracks))
	for _, track := range init.Tracks {
		info, status := streamInfoForTrack(track)
		if !status.Ok() {
			return nil, status
		}
		streams = append(streams, info)
	}
	return streams, model.OK
}

// streamInfoForTrack converts one fmp4.InitTrack (already codec-typed by
// mediacommon) into a StreamInfo, recovering the fields internal/isobmff's
// mp4CodecFor would need to rebuild the same sample entry on the way out.
func streamInfoForTrack(track *fmp4.InitTrack) (model.StreamInfo, model.Status) {
	base := model.StreamInfo{
		TrackID:   track.ID,
		Timescale: track.TimeScale,
	}

	switch codec := track.Codec.(type) {
	case *mp4.CodecH264:
		var sps h264.SPS
		if err := sps.Unmarshal(codec.SPS); err != nil {
			return model.StreamInfo{}, model.Wrap(model.CodeParserFailure, "parsing H.264 SPS", err)
		}
		base.Kind = model.KindVideo
		base.Codec = model.CodecH264
		base.CodecConfig = codecs.PackParameterSets(codec.SPS, codec.PPS)
		base.Video = model.VideoInfo{
			Width:          sps.Width(),
			Height:         sps.Height(),
			NALULengthSize: model.NALULength4,
		}

	case *mp4.CodecH265:
		var sps h265.SPS
		if err := sps.Unmarshal(codec.SPS); err != nil {
			return model.StreamInfo{}, model.Wrap(model.CodeParserFailure, "parsing H.265 SPS", err)
		}
		base.Kind = model.KindVideo
		base.Codec = model.CodecH265
		base.CodecConfig = codecs.PackParameterSets(codec.VPS, codec.SPS, codec.PPS)
		base.Video = model.VideoInfo{
			Width:          sps.Width(),
			Height:         sps.Height(),
			NALULengthSize: model.NALULength4,
		}

	case *mp4.CodecAV1:
		base.Kind = model.KindVideo
		base.Codec = model.CodecAV1
		base.CodecConfig = codec.SequenceHeader

	case *mp4.CodecVP9:
		base.Kind = model.KindVideo
		base.Codec = model.CodecVP9
		base.Video = model.VideoInfo{Width: codec.Width, Height: codec.Height}

	case *mp4.CodecMPEG4Audio:
		config, err := codec.Config.Marshal()
		if err != nil {
			return model.StreamInfo{}, model.Wrap(model.CodeParserFailure, "marshaling AudioSpecificConfig", err)
		}
		base.Kind = model.KindAudio
		base.Codec = model.CodecAAC
		base.CodecConfig = config
		base.Audio = model.AudioInfo{
			SampleRate:   codec.Config.SampleRate,
			ChannelCount: codec.Config.ChannelCount,
		}

	case *mp4.CodecAC3:
		base.Kind = model.KindAudio
		base.Codec = model.CodecAC3
		base.Audio = model.AudioInfo{SampleRate: codec.SampleRate, ChannelCount: codec.ChannelCount}

	case *mp4.CodecEAC3:
		base.Kind = model.KindAudio
		base.Codec = model.CodecEAC3
		base.Audio = model.AudioInfo{SampleRate: codec.SampleRate, ChannelCount: codec.ChannelCount}

	case *mp4.CodecOpus:
		base.Kind = model.KindAudio
		base.Codec = model.CodecOpus
		// Opus always reports 48 kHz to the packager regardless of source
		// sample rate.
		base.Audio = model.AudioInfo{SampleRate: 48000, ChannelCount: codec.ChannelCount}

	case *mp4.CodecMPEG1Audio:
		// The MPEG-1 audio sample entry carries no rate/channel fields of its
		// own (that metadata lives in each frame's header); StreamInfo still
		// requires a positive sample rate, so default to the common 44.1kHz
		// stereo case. A misdetected source rate only affects this packager's
		// own validation, not the bytes it passes through.
		base.Kind = model.KindAudio
		base.Codec = model.CodecMP3
		base.Audio = model.AudioInfo{SampleRate: 44100, ChannelCount: 2}

	default:
		return model.StreamInfo{}, model.NewStatus(model.CodeUnimplemented,
			fmt.Sprintf("track %d has an unsupported codec in the init segment", track.ID))
	}

	if status := base.Validate(); !status.Ok() {
		return model.StreamInfo{}, status
	}
	return base, model.OK
}
