package codecs

import "github.com/jmylchreest/livepackager/internal/model"

// vp8SyncCode is the uncompressed-header sync code VP8/VP9 keyframes carry
// at byte offset 3.
var vp8SyncCode = [3]byte{0x9D, 0x01, 0x2A}

// VP8Header is the subset of the VP8 uncompressed frame header the packager
// needs to synthesize a VPCodecConfigurationRecord.
type VP8Header struct {
	Profile int
	Width   int
	Height  int
}

// IsVP8Keyframe reports whether data's uncompressed header is a keyframe
// header: at least 10 bytes available, and the sync code 0x9D 0x01 0x2A
// present at offset 3, per spec.md §8's boundary behavior for VP8 keyframe
// detection.
func IsVP8Keyframe(data []byte) bool {
	if len(data) < 10 {
		return false
	}
	return data[3] == vp8SyncCode[0] && data[4] == vp8SyncCode[1] && data[5] == vp8SyncCode[2]
}

// ParseVP8Keyframe parses the uncompressed header of a VP8 keyframe.
func ParseVP8Keyframe(data []byte) (VP8Header, model.Status) {
	if !IsVP8Keyframe(data) {
		return VP8Header{}, model.NewStatus(model.CodeParserFailure, "VP8 sync code 0x9D012A not found at offset 3")
	}

	tag := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	isKeyframe := tag&0x01 == 0
	if !isKeyframe {
		return VP8Header{}, model.NewStatus(model.CodeParserFailure, "frame tag does not mark a keyframe")
	}

	widthField := uint16(data[6]) | uint16(data[7])<<8
	heightField := uint16(data[8]) | uint16(data[9])<<8

	return VP8Header{
		Width:  int(widthField & 0x3FFF),
		Height: int(heightField & 0x3FFF),
	}, model.OK
}

// VPCodecConfigurationRecord synthesizes the VP8/VP9 codec configuration
// record payload (VP Codec ISO Media File Format Binding §3.3), profile and
// level left at their most-compatible defaults for VP8 since the
// uncompressed header does not directly carry them.
func (h VP8Header) VPCodecConfigurationRecord(bitDepth, chromaSubsampling byte) []byte {
	return []byte{
		byte(h.Profile),
		0x00, // level, unknown from the uncompressed header
		(bitDepth << 4) | (chromaSubsampling << 1),
		0x00, // colourPrimaries
		0x00, // transferCharacteristics
		0x00, // matrixCoefficients
		0x00, 0x00, // codecIntializationDataSize
	}
}
