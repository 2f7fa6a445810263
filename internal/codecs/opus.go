package codecs

import "github.com/jmylchreest/livepackager/internal/model"

// opusOutputSampleRate is fixed per spec.md §4.4: Opus always reports 48 kHz
// to the packager regardless of the source sample rate the OpusSpecificBox
// carries, since every Opus decoder operates at 48 kHz internally.
const opusOutputSampleRate = 48000

// OpusConfig is the parsed content of an OpusSpecificBox (dOps).
type OpusConfig struct {
	ChannelCount         int
	PreSkip              uint16
	InputSampleRate      uint32
	OutputGain           int16
	ChannelMappingFamily byte
}

// ParseOpusSpecificBox parses the dOps payload (Opus-in-ISOBMFF §4.3.2).
func ParseOpusSpecificBox(data []byte) (OpusConfig, model.Status) {
	if len(data) < 11 {
		return OpusConfig{}, model.NewStatus(model.CodeParserFailure, "OpusSpecificBox shorter than 11 bytes")
	}
	// data[0] is the box Version; the multi-byte fields are big-endian.
	return OpusConfig{
		ChannelCount:         int(data[1]),
		PreSkip:              uint16(data[2])<<8 | uint16(data[3]),
		InputSampleRate:      uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7]),
		OutputGain:           int16(uint16(data[8])<<8 | uint16(data[9])),
		ChannelMappingFamily: data[10],
	}, model.OK
}

// StreamInfo fills the audio fields of a StreamInfo, always reporting 48 kHz
// as the sample rate per spec.md §4.4.
func (c OpusConfig) StreamInfo() model.AudioInfo {
	return model.AudioInfo{
		SampleRate:   opusOutputSampleRate,
		ChannelCount: c.ChannelCount,
	}
}
