package codecs

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/av1"

	"github.com/jmylchreest/livepackager/internal/model"
)

// dolbyVisionBrands maps (profile, transfer_characteristics) to the
// compatible_brands entry a Dolby Vision track adds to ftyp/styp, per
// Dolby Vision Streams Within the ISO Base Media File Format v2.3.
var dolbyVisionBrands = map[[2]int]string{
	{5, 18}:  "dvhe", // profile 5 (dvhe.05), ST 2084 PQ transfer
	{8, 18}:  "dvhe", // profile 8 (dvhe.08), PQ transfer
	{8, 14}:  "dvhe", // profile 8, SDR-compatible transfer
	{9, 1}:   "dvav", // profile 9 (dvav.09), BT.709 transfer (AVC base layer)
	{10, 18}: "dav1", // profile 10 (dav1.10), AV1 base layer, PQ transfer
}

// DOVIDecoderConfigurationRecord is the parsed dvcC/dvvC/dvwC box payload.
type DOVIDecoderConfigurationRecord struct {
	Profile                 int
	Level                   int
	BLSignalCompatibilityID int
}

// ParseDOVIDecoderConfigurationRecord parses the fixed-layout record (5
// bytes of version/profile/level/flags used by this packager's subset).
func ParseDOVIDecoderConfigurationRecord(data []byte) (DOVIDecoderConfigurationRecord, model.Status) {
	if len(data) < 5 {
		return DOVIDecoderConfigurationRecord{}, model.NewStatus(model.CodeParserFailure, "DOVIDecoderConfigurationRecord shorter than 5 bytes")
	}
	profile := int(data[2]) >> 1
	level := (int(data[2])&0x01)<<5 | int(data[3])>>3
	blCompat := int(data[4]) >> 4

	return DOVIDecoderConfigurationRecord{
		Profile:                 profile,
		Level:                   level,
		BLSignalCompatibilityID: blCompat,
	}, model.OK
}

// CodecString formats the RFC 6381 codec string "<fourCC>.<profile>.<level>"
// with two-digit profile and level (e.g. "dvhe.08.06"); the four-char
// prefix for a profile is the one BaseLayerFourCC reports.
func (r DOVIDecoderConfigurationRecord) CodecString(fourCC string) string {
	return fmt.Sprintf("%s.%02d.%02d", fourCC, r.Profile, r.Level)
}

// CompatibleBrand resolves the ftyp/styp compatible_brands entry for this
// record given the track's transfer_characteristics.
func (r DOVIDecoderConfigurationRecord) CompatibleBrand(transferCharacteristics int) (string, model.Status) {
	brand, ok := dolbyVisionBrands[[2]int{r.Profile, transferCharacteristics}]
	if !ok {
		return "", model.NewStatus(model.CodeUnimplemented,
			fmt.Sprintf("no compatible brand for Dolby Vision profile %d with transfer characteristics %d", r.Profile, transferCharacteristics))
	}
	return brand, model.OK
}

// BaseLayerFourCC reports the sample-entry four-character code for the
// record's profile: "dav1" for profile 10 (AV1 base layer), "dvav" for
// profile 9 (AVC base layer), and "dvhe" for every other profile.
func (r DOVIDecoderConfigurationRecord) BaseLayerFourCC() string {
	switch r.Profile {
	case 10:
		return "dav1"
	case 9:
		return "dvav"
	default:
		return "dvhe"
	}
}

// HasAV1BaseLayer reports whether this profile's base layer is AV1-coded,
// requiring the AV1 OBU walk to extract the enhancement-layer sequence
// header before the sample entry can be built.
func (r DOVIDecoderConfigurationRecord) HasAV1BaseLayer() bool {
	return r.Profile == 10
}

// AV1BaseLayerSequenceHeader walks an AV1 OBU stream (the profile-10 base
// layer carries one) and returns the first sequence_header OBU it finds.
func AV1BaseLayerSequenceHeader(data []byte) ([]byte, model.Status) {
	var bs av1.Bitstream
	if err := bs.Unmarshal(data); err != nil {
		return nil, model.Wrap(model.CodeParserFailure, "parsing AV1 OBU bitstream", err)
	}
	for _, obu := range bs {
		if len(obu) == 0 {
			continue
		}
		obuType := av1.OBUType((obu[0] >> 3) & 0x0F)
		if obuType == av1.OBUTypeSequenceHeader {
			return obu, model.OK
		}
	}
	return nil, model.NewStatus(model.CodeNotFound, "no sequence_header OBU found in Dolby Vision AV1 base layer")
}
