package mpegts

import "encoding/binary"

// videoParamCache holds the parameter-set NAL units a video track's
// StreamInfo.CodecConfig declared, so they can be re-prepended to every
// keyframe. internal/codecs strips SPS/PPS/VPS out of the media samples
// themselves, so TS output (unlike the fMP4 stsd box) has to carry them
// inline on every keyframe for HLS-TS clients that join mid-stream.
type videoParamCache struct {
	h264SPS, h264PPS          []byte
	h265VPS, h265SPS, h265PPS []byte
}

func newVideoParamCache() *videoParamCache {
	return &videoParamCache{}
}

// setFromCodecConfig unpacks the 4-byte-length-prefixed parameter sets a
// StreamInfo.CodecConfig carries for H.264 (SPS, PPS) or H.265 (VPS, SPS, PPS).
func (v *videoParamCache) setFromCodecConfig(isH265 bool, codecConfig []byte) {
	if isH265 {
		v.h265VPS = extractParam(codecConfig, 0)
		v.h265SPS = extractParam(codecConfig, 1)
		v.h265PPS = extractParam(codecConfig, 2)
		return
	}
	v.h264SPS = extractParam(codecConfig, 0)
	v.h264PPS = extractParam(codecConfig, 1)
}

// prepend returns nalus with this track's cached parameter sets prepended
// when isKeyFrame is set and the cache holds a complete parameter set.
func (v *videoParamCache) prepend(nalus [][]byte, isKeyFrame bool, isH265 bool) [][]byte {
	if !isKeyFrame {
		return nalus
	}

	if isH265 {
		if v.h265VPS == nil || v.h265SPS == nil || v.h265PPS == nil {
			return nalus
		}
		out := make([][]byte, 0, len(nalus)+3)
		out = append(out, v.h265VPS, v.h265SPS, v.h265PPS)
		return append(out, nalus...)
	}

	if v.h264SPS == nil || v.h264PPS == nil {
		return nalus
	}
	out := make([][]byte, 0, len(nalus)+2)
	out = append(out, v.h264SPS, v.h264PPS)
	return append(out, nalus...)
}

// extractParam reads the idx'th 4-byte-length-prefixed parameter set out of
// data, matching the packing internal/isobmff's builder expects.
func extractParam(data []byte, idx int) []byte {
	i := 0
	for n := 0; i+4 <= len(data); n++ {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		i += 4
		if i+length > len(data) {
			return nil
		}
		if n == idx {
			return data[i : i+length]
		}
		i += length
	}
	return nil
}
