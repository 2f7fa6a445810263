package model

import (
	"golang.org/x/text/language"
)

// Kind is the track type a StreamInfo describes.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Codec is the closed set of codec tags a StreamInfo may carry.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
	CodecAAC
	CodecAC3
	CodecEAC3
	CodecMP3
	CodecOpus
	CodecVP8
	CodecVP9
	CodecAV1
	CodecFLAC
	CodecPCM
	CodecTTML
	CodecWebVTT
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAAC:
		return "aac"
	case CodecAC3:
		return "ac3"
	case CodecEAC3:
		return "eac3"
	case CodecMP3:
		return "mp3"
	case CodecOpus:
		return "opus"
	case CodecVP8:
		return "vp8"
	case CodecVP9:
		return "vp9"
	case CodecAV1:
		return "av1"
	case CodecFLAC:
		return "flac"
	case CodecPCM:
		return "pcm"
	case CodecTTML:
		return "ttml"
	case CodecWebVTT:
		return "webvtt"
	default:
		return "unknown"
	}
}

// NALULengthSize is the byte width of the length prefix used in the
// length-prefixed (ISO-BMFF) representation of H.264/H.265 access units.
type NALULengthSize int

const (
	NALULength1 NALULengthSize = 1
	NALULength2 NALULengthSize = 2
	NALULength4 NALULengthSize = 4
)

// VideoInfo carries the video-specific fields of a StreamInfo.
type VideoInfo struct {
	Width                 int
	Height                int
	PixelAspectRatioNum   int
	PixelAspectRatioDenom int
	NALULengthSize        NALULengthSize
	TransferCharacteristics int
}

// AudioInfo carries the audio-specific fields of a StreamInfo.
type AudioInfo struct {
	SampleRate     int
	ChannelCount   int
	BitsPerSample  int
	SeekPreRollNs  int64
	CodecDelayNs   int64
}

// StreamInfo is parsed once from the initialization segment and is
// immutable thereafter.
type StreamInfo struct {
	Kind Kind
	Codec Codec

	// CodecConfig is the opaque codec-configuration blob (AudioSpecificConfig,
	// AVCDecoderConfigurationRecord payload fields, etc.) as produced by the
	// relevant internal/codecs adapter.
	CodecConfig []byte

	TrackID   int
	Timescale uint32

	// DurationKnown is false when the duration is not known up front (the
	// common live-streaming case); Duration is meaningless when false.
	DurationKnown bool
	Duration      int64

	// Language is a BCP-47 tag, validated by Validate.
	Language string

	Video VideoInfo
	Audio AudioInfo
}

// Validate enforces the invariants spec.md §3 places on StreamInfo: a
// positive track id, a positive timescale, and (when set) a well-formed
// BCP-47 language tag.
func (s StreamInfo) Validate() Status {
	if s.TrackID <= 0 {
		return NewStatus(CodeInvalidArgument, "track id must be a positive integer")
	}
	if s.Timescale == 0 {
		return NewStatus(CodeInvalidArgument, "timescale must be a positive integer")
	}
	if s.Codec == CodecUnknown {
		return NewStatus(CodeInvalidArgument, "codec tag must be set")
	}
	if s.Language != "" {
		if _, err := language.Parse(s.Language); err != nil {
			return Wrap(CodeInvalidArgument, "language is not a valid BCP-47 tag: "+s.Language, err)
		}
	}
	switch s.Kind {
	case KindVideo:
		if s.Video.Width <= 0 || s.Video.Height <= 0 {
			return NewStatus(CodeInvalidArgument, "video streams require positive width and height")
		}
		switch s.Video.NALULengthSize {
		case NALULength1, NALULength2, NALULength4, 0:
		default:
			return NewStatus(CodeInvalidArgument, "NAL unit length size must be 1, 2, or 4")
		}
	case KindAudio:
		if s.Audio.SampleRate <= 0 {
			return NewStatus(CodeInvalidArgument, "audio streams require a positive sample rate")
		}
		if s.Audio.ChannelCount <= 0 {
			return NewStatus(CodeInvalidArgument, "audio streams require a positive channel count")
		}
	case KindText:
		// no additional constraints
	default:
		return NewStatus(CodeInvalidArgument, "unrecognized stream kind")
	}
	return OK
}
