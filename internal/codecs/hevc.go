package codecs

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"

	"github.com/jmylchreest/livepackager/internal/model"
)

// HEVCAdapter holds the per-track VPS/SPS/PPS state an H.265 track needs.
type HEVCAdapter struct {
	vps, sps, pps []byte

	parsedSPS h265.SPS
	haveSPS   bool
}

// NewHEVCAdapter returns an empty adapter.
func NewHEVCAdapter() *HEVCAdapter {
	return &HEVCAdapter{}
}

// ConvertToLengthPrefixed is symmetric to AVCAdapter.ConvertToLengthPrefixed
// but dispatches on the two-byte H.265 NAL unit header.
func (a *HEVCAdapter) ConvertToLengthPrefixed(annexB []byte) ([]byte, model.Status) {
	var units h264AnnexBCompat
	if err := units.Unmarshal(annexB); err != nil {
		return nil, model.Wrap(model.CodeParserFailure, "parsing Annex-B bitstream", err)
	}

	var out []byte
	for _, nalu := range units.units {
		if len(nalu) < 2 {
			continue
		}
		naluType := h265.NALUType((nalu[0] >> 1) & 0x3F)

		switch naluType {
		case h265.NALUType_VPS_NUT:
			a.vps = append([]byte(nil), nalu...)
			continue
		case h265.NALUType_SPS_NUT:
			a.sps = append([]byte(nil), nalu...)
			var sps h265.SPS
			if err := sps.Unmarshal(nalu); err == nil {
				a.parsedSPS = sps
				a.haveSPS = true
			}
			continue
		case h265.NALUType_PPS_NUT:
			a.pps = append([]byte(nil), nalu...)
			continue
		case h265.NALUType_AUD_NUT:
			continue
		}

		lengthPrefixed := make([]byte, 4+len(nalu))
		binary.BigEndian.PutUint32(lengthPrefixed, uint32(len(nalu)))
		copy(lengthPrefixed[4:], nalu)
		out = append(out, lengthPrefixed...)
	}
	return out, model.OK
}

// Ready reports whether VPS, SPS, and PPS have all been observed, the
// precondition spec.md §8 places on decoder-configuration-record emission.
func (a *HEVCAdapter) Ready() bool {
	return len(a.vps) > 0 && a.haveSPS && len(a.pps) > 0
}

// StreamInfo fills the video fields of a StreamInfo from the most recently
// parsed SPS.
func (a *HEVCAdapter) StreamInfo() (model.VideoInfo, model.Status) {
	if !a.haveSPS {
		return model.VideoInfo{}, model.NewStatus(model.CodeParserFailure, "no SPS observed yet")
	}
	return model.VideoInfo{
		Width:          a.parsedSPS.Width(),
		Height:         a.parsedSPS.Height(),
		NALULengthSize: model.NALULength4,
	}, model.OK
}

// CodecString builds the RFC 6381 codec string ("hvc1.<profile>.<compat>.L<level>.<constraint>")
// from the general_profile_tier_level fields of the parsed SPS.
func (a *HEVCAdapter) CodecString() (string, model.Status) {
	if !a.haveSPS {
		return "", model.NewStatus(model.CodeParserFailure, "no SPS observed yet")
	}
	sps := a.parsedSPS

	profileSpaceChar := ""
	switch sps.ProfileTierLevel.GeneralProfileSpace {
	case 1:
		profileSpaceChar = "A"
	case 2:
		profileSpaceChar = "B"
	case 3:
		profileSpaceChar = "C"
	}

	// The compatibility-flags segment is the 32-bit flag word with its bits
	// reversed, rendered as hex with leading zeros trimmed.
	compat := bits.Reverse32(profileCompatibilityFlagsToUint32(sps.ProfileTierLevel.GeneralProfileCompatibilityFlag))

	tierChar := "L"
	if sps.ProfileTierLevel.GeneralTierFlag != 0 {
		tierChar = "H"
	}

	constraint := generalConstraintString(sps.ProfileTierLevel)

	codec := fmt.Sprintf("hvc1.%s%d.%X.%s%d.%s",
		profileSpaceChar,
		sps.ProfileTierLevel.GeneralProfileIdc,
		compat,
		tierChar,
		sps.ProfileTierLevel.GeneralLevelIdc,
		constraint,
	)
	return codec, model.OK
}

// profileCompatibilityFlagsToUint32 packs the 32 general_profile_compatibility_flag
// bits (as read from the bitstream, most-significant first) back into the
// 32-bit word they were unpacked from.
func profileCompatibilityFlagsToUint32(flags [32]bool) uint32 {
	var v uint32
	for j, f := range flags {
		if f {
			v |= 1 << uint(31-j)
		}
	}
	return v
}

// generalConstraintString renders the first byte of the general constraint
// indicator flags (progressive, interlaced, non-packed, frame-only) as the
// trailing hex segment of an RFC 6381 HEVC codec string; the remaining
// constraint bits are not rendered.
func generalConstraintString(ptl h265.SPS_ProfileTierLevel) string {
	flags := [...]bool{
		ptl.GeneralProgressiveSourceFlag,
		ptl.GeneralInterlacedSourceFlag,
		ptl.GeneralNonPackedConstraintFlag,
		ptl.GeneralFrameOnlyConstraintFlag,
	}
	var b byte
	for i, f := range flags {
		if f {
			b |= 1 << (7 - i)
		}
	}
	return fmt.Sprintf("%X", b)
}

// ConfigurationRecord builds an HEVCDecoderConfigurationRecord (ISO/IEC
// 14496-15 §8.3.3.1.2) with three NAL-unit arrays (VPS, SPS, PPS) and
// array-completeness set to 1 (parameter sets are stripped from samples).
func (a *HEVCAdapter) ConfigurationRecord() ([]byte, model.Status) {
	if !a.Ready() {
		return nil, model.NewStatus(model.CodeParserFailure, "decoder configuration record requires VPS, SPS, and PPS")
	}

	ptl := a.parsedSPS.ProfileTierLevel
	out := []byte{0x01} // configurationVersion

	generalProfileSpace := byte(ptl.GeneralProfileSpace) << 6
	var tierBit byte
	if ptl.GeneralTierFlag != 0 {
		tierBit = 1 << 5
	}
	out = append(out, generalProfileSpace|tierBit|byte(ptl.GeneralProfileIdc)&0x1F)

	compatBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(compatBytes, profileCompatibilityFlagsToUint32(ptl.GeneralProfileCompatibilityFlag))
	out = append(out, compatBytes...)

	// 6 bytes of general_constraint_indicator_flags; approximate with the
	// flags generalConstraintString renders plus padding.
	constraintBytes := make([]byte, 6)
	for i, f := range [...]bool{
		ptl.GeneralProgressiveSourceFlag,
		ptl.GeneralInterlacedSourceFlag,
		ptl.GeneralNonPackedConstraintFlag,
		ptl.GeneralFrameOnlyConstraintFlag,
	} {
		if f {
			constraintBytes[0] |= 1 << (7 - i)
		}
	}
	out = append(out, constraintBytes...)

	out = append(out, byte(ptl.GeneralLevelIdc))

	// min_spatial_segmentation_idc and parallelismType are emitted as
	// reserved-default values; chroma_format_idc and the bit depths come
	// from the parsed SPS.
	out = append(out, 0xF0, 0x00) // reserved(4)=1111 + min_spatial_segmentation_idc
	out = append(out, 0xFC)       // reserved(6) + parallelismType
	out = append(out, 0xFC|byte(a.parsedSPS.ChromaFormatIdc))
	out = append(out, 0xF8|byte(a.parsedSPS.BitDepthLumaMinus8))
	out = append(out, 0xF8|byte(a.parsedSPS.BitDepthChromaMinus8))
	out = append(out, 0x00, 0x00) // avgFrameRate
	out = append(out, 0x0F)       // constantFrameRate(2)+numTemporalLayers(3)+temporalIdNested(1)+lengthSizeMinusOne(2)=4-byte lengths

	arrays := []struct {
		naluType byte
		nalus    [][]byte
	}{
		{byte(h265.NALUType_VPS_NUT), [][]byte{a.vps}},
		{byte(h265.NALUType_SPS_NUT), [][]byte{a.sps}},
		{byte(h265.NALUType_PPS_NUT), [][]byte{a.pps}},
	}
	out = append(out, byte(len(arrays)))
	for _, arr := range arrays {
		out = append(out, 0x80|arr.naluType) // array_completeness=1
		numNalus := make([]byte, 2)
		binary.BigEndian.PutUint16(numNalus, uint16(len(arr.nalus)))
		out = append(out, numNalus...)
		for _, nalu := range arr.nalus {
			out = appendU16LenPrefixed(out, nalu)
		}
	}

	return out, model.OK
}

// h264AnnexBCompat is a tiny indirection so HEVCAdapter can reuse the
// h264.AnnexB splitter: Annex-B start-code scanning is codec-agnostic, only
// NAL header interpretation differs between H.264 and H.265.
type h264AnnexBCompat struct {
	units h264.AnnexB
}

func (c *h264AnnexBCompat) Unmarshal(data []byte) error {
	return c.units.Unmarshal(data)
}
