package model

// MediaSample is one access unit: one coded video frame, one audio frame, or
// one text cue.
type MediaSample struct {
	// DTS and PTS are signed ticks in the track timescale. Invariant:
	// PTS >= DTS - 2^31 (the PTS/DTS delta must be representable as a signed
	// 32-bit composition-time offset).
	DTS int64
	PTS int64

	// Duration is ticks, non-negative. Zero is only valid for the final
	// sample of a track, where the true duration is not yet known.
	Duration uint32

	IsKeyFrame bool

	// Payload is the owned access-unit payload in whatever framing the
	// caller's demuxer produced (Annex-B for H.264/H.265 is converted to
	// length-prefixed form by internal/codecs before reaching the builder).
	Payload []byte

	// SideData carries adapter-specific auxiliary bytes (e.g. an emsg box to
	// pass through) that do not belong in Payload.
	SideData []byte

	// Decrypt is non-nil when this sample arrived encrypted and must be
	// decrypted before re-encoding or re-encryption.
	Decrypt *DecryptConfig
}

// PTSOffset returns PTS-DTS as the signed 32-bit composition time offset
// ISO-BMFF's trun/ctts boxes carry. Callers validate the representability
// invariant before calling this; it is not re-checked here.
func (s MediaSample) PTSOffset() int32 {
	return int32(s.PTS - s.DTS)
}
