package codecs

import (
	"encoding/binary"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/jmylchreest/livepackager/internal/model"
)

// highProfiles are the H.264 profile_idc values that carry the extended
// chroma/bit-depth fields in the AVCDecoderConfigurationRecord.
var highProfiles = map[uint8]bool{100: true, 110: true, 122: true, 144: true}

// AVCAdapter holds the per-track parameter-set state an H.264 track needs:
// the most recently seen SPS/PPS/SPS-ext, kept for decoder-configuration-record
// emission after they have been stripped out of the media samples.
type AVCAdapter struct {
	sps    []byte
	pps    []byte
	spsExt []byte

	parsedSPS h264.SPS
	haveSPS   bool
}

// NewAVCAdapter returns an empty adapter; parameter sets accumulate as
// ConvertToLengthPrefixed observes keyframes.
func NewAVCAdapter() *AVCAdapter {
	return &AVCAdapter{}
}

// ConvertToLengthPrefixed rewrites an Annex-B access unit into the
// length-prefixed (ISO-BMFF) representation, stripping SPS/PPS/SPS-ext/AUD
// NAL units from the output while retaining them in the adapter's state.
func (a *AVCAdapter) ConvertToLengthPrefixed(annexB []byte) ([]byte, model.Status) {
	var units h264.AnnexB
	if err := units.Unmarshal(annexB); err != nil {
		return nil, model.Wrap(model.CodeParserFailure, "parsing Annex-B bitstream", err)
	}

	var out []byte
	for _, nalu := range units {
		if len(nalu) == 0 {
			continue
		}
		naluType := h264.NALUType(nalu[0] & 0x1F)

		switch naluType {
		case h264.NALUTypeSPS:
			a.sps = append([]byte(nil), nalu...)
			var sps h264.SPS
			if err := sps.Unmarshal(nalu); err == nil {
				a.parsedSPS = sps
				a.haveSPS = true
			}
			continue
		case h264.NALUTypePPS:
			a.pps = append([]byte(nil), nalu...)
			continue
		case h264.NALUTypeAccessUnitDelimiter:
			continue
		}

		lengthPrefixed := make([]byte, 4+len(nalu))
		binary.BigEndian.PutUint32(lengthPrefixed, uint32(len(nalu)))
		copy(lengthPrefixed[4:], nalu)
		out = append(out, lengthPrefixed...)
	}
	return out, model.OK
}

// Ready reports whether an SPS that parsed successfully and a PPS have both
// been observed, the precondition for decoder-configuration-record emission.
func (a *AVCAdapter) Ready() bool {
	return a.haveSPS && len(a.pps) > 0
}

// StreamInfo fills the video fields of a StreamInfo from the most recently
// parsed SPS.
func (a *AVCAdapter) StreamInfo() (model.VideoInfo, model.Status) {
	if !a.haveSPS {
		return model.VideoInfo{}, model.NewStatus(model.CodeParserFailure, "no SPS observed yet")
	}
	return model.VideoInfo{
		Width:          a.parsedSPS.Width(),
		Height:         a.parsedSPS.Height(),
		NALULengthSize: model.NALULength4,
	}, model.OK
}

// ConfigurationRecord builds an AVCDecoderConfigurationRecord (ISO/IEC
// 14496-15 §5.2.4.1) from the adapter's observed SPS/PPS/SPS-ext.
func (a *AVCAdapter) ConfigurationRecord() ([]byte, model.Status) {
	if !a.Ready() {
		return nil, model.NewStatus(model.CodeParserFailure, "decoder configuration record requires SPS and PPS")
	}
	if len(a.sps) < 4 {
		return nil, model.NewStatus(model.CodeParserFailure, "SPS too short")
	}

	profile := a.sps[1]
	profileCompat := a.sps[2]
	level := a.sps[3]

	out := []byte{
		0x01, // configurationVersion
		profile,
		profileCompat,
		level,
		0xFC | 0x03, // reserved(6) + lengthSizeMinusOne(2) = 3 (4-byte lengths)
		0xE0 | 0x01, // reserved(3) + numOfSequenceParameterSets(5) = 1
	}
	out = appendU16LenPrefixed(out, a.sps)
	out = append(out, byte(1)) // numOfPictureParameterSets
	out = appendU16LenPrefixed(out, a.pps)

	if highProfiles[profile] {
		chroma := byte(a.parsedSPS.ChromaFormatIdc)
		bitDepthLuma := byte(a.parsedSPS.BitDepthLumaMinus8)
		bitDepthChroma := byte(a.parsedSPS.BitDepthChromaMinus8)

		out = append(out, 0xFC|chroma)
		out = append(out, 0xF8|bitDepthLuma)
		out = append(out, 0xF8|bitDepthChroma)

		if len(a.spsExt) > 0 {
			out = append(out, 1)
			out = appendU16LenPrefixed(out, a.spsExt)
		} else {
			out = append(out, 0)
		}
	}

	return out, model.OK
}

func appendU16LenPrefixed(dst, data []byte) []byte {
	lenBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBytes, uint16(len(data)))
	dst = append(dst, lenBytes...)
	return append(dst, data...)
}
