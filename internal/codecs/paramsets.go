package codecs

import "encoding/binary"

// PackParameterSets concatenates parameter sets (SPS/PPS/VPS, in the order
// internal/isobmff and internal/mpegts expect) into the 4-byte-length-
// prefixed blob StreamInfo.CodecConfig carries for H.264/H.265 tracks, the
// packing their extractParam helpers unpack.
func PackParameterSets(sets ...[]byte) []byte {
	var out []byte
	for _, s := range sets {
		out = binary.BigEndian.AppendUint32(out, uint32(len(s)))
		out = append(out, s...)
	}
	return out
}
