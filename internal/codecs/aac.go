package codecs

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/jmylchreest/livepackager/internal/model"
)

// adtsSampleRates is the ISO 14496-3 Table 1.18 sampling_frequency_index
// lookup table; entries 13-15 are reserved.
var adtsSampleRates = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

// AACAdapter parses AudioSpecificConfig and converts raw AAC frames to ADTS.
type AACAdapter struct {
	config mpeg4audio.AudioSpecificConfig
}

// NewAACAdapter parses the init-segment AudioSpecificConfig bytes.
func NewAACAdapter(asc []byte) (*AACAdapter, model.Status) {
	if len(asc) < 2 {
		return nil, model.NewStatus(model.CodeParserFailure, "AudioSpecificConfig shorter than 2 bytes")
	}
	var config mpeg4audio.AudioSpecificConfig
	if err := config.Unmarshal(asc); err != nil {
		return nil, model.Wrap(model.CodeParserFailure, "parsing AudioSpecificConfig", err)
	}
	if config.Type > mpeg4audio.ObjectTypeAACLC && config.Type > 4 {
		return nil, model.NewStatus(model.CodeUnimplemented, "AAC object types beyond 4 are not supported")
	}
	return &AACAdapter{config: config}, model.OK
}

// StreamInfo fills the audio fields of a StreamInfo, applying the implicit
// SBR rule: when the config signals spectral band replication, the reported
// sample rate doubles and mono base channel configurations are forced to
// stereo, per spec.md §4.4.
func (a *AACAdapter) StreamInfo() model.AudioInfo {
	sampleRate := a.config.SampleRate
	channels := a.config.ChannelCount
	if a.config.ExtensionSampleRate > 0 {
		sampleRate = a.config.ExtensionSampleRate
		if channels < 2 {
			channels = 2
		}
	}
	return model.AudioInfo{
		SampleRate:   sampleRate,
		ChannelCount: channels,
	}
}

// ToADTS prepends a 7-byte ADTS header to a raw AAC frame. frame_length
// equals header size (7, since protection_absent is always set) plus the
// payload size.
func (a *AACAdapter) ToADTS(payload []byte) ([]byte, model.Status) {
	sampleRateIndex := indexOfSampleRate(a.config.SampleRate)
	if sampleRateIndex < 0 {
		return nil, model.NewStatus(model.CodeParserFailure, "sample rate has no ADTS sampling_frequency_index")
	}

	frameLength := 7 + len(payload)
	header := make([]byte, 7, frameLength)

	profileMinusOne := byte(a.config.Type - 1)
	if a.config.Type == 0 {
		profileMinusOne = 1 // treat unset as AAC-LC
	}

	header[0] = 0xFF
	header[1] = 0xF1 // syncword low bits + MPEG-4 + layer=00 + protection_absent=1
	header[2] = (profileMinusOne << 6) | (byte(sampleRateIndex) << 2) | (byte(a.config.ChannelCount) >> 2)
	header[3] = (byte(a.config.ChannelCount&0x03) << 6) | byte(frameLength>>11)
	header[4] = byte(frameLength >> 3)
	header[5] = byte(frameLength<<5) | 0x1F
	header[6] = 0xFC

	return append(header, payload...), model.OK
}

func indexOfSampleRate(rate int) int {
	for i, r := range adtsSampleRates {
		if r == rate {
			return i
		}
	}
	return -1
}

// ParseADTSConfig extracts an AudioSpecificConfig-equivalent from a raw ADTS
// header, used when the demuxer hands the packager ADTS-framed input instead
// of a separate AudioSpecificConfig.
func ParseADTSConfig(adts []byte) (mpeg4audio.AudioSpecificConfig, model.Status) {
	if len(adts) < 7 {
		return mpeg4audio.AudioSpecificConfig{}, model.NewStatus(model.CodeParserFailure, "ADTS header shorter than 7 bytes")
	}
	profile := ((adts[2] >> 6) & 0x03) + 1
	sampleRateIndex := (adts[2] >> 2) & 0x0F
	channelConfig := ((adts[2] & 0x01) << 2) | ((adts[3] >> 6) & 0x03)

	if int(sampleRateIndex) >= len(adtsSampleRates) || adtsSampleRates[sampleRateIndex] == 0 {
		return mpeg4audio.AudioSpecificConfig{}, model.NewStatus(model.CodeParserFailure, "reserved ADTS sampling_frequency_index")
	}

	return mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectType(profile),
		SampleRate:   adtsSampleRates[sampleRateIndex],
		ChannelCount: int(channelConfig),
	}, model.OK
}
