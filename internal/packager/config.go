// Package packager implements the live-packager façade: one already-demuxed
// initialization blob plus one already-demuxed media segment in, one
// reformatted segment out, per spec.md §6's external interface. It owns no
// network, manifest, or file I/O; that is cmd/livepackager's job.
package packager

import (
	"fmt"

	"github.com/jmylchreest/livepackager/internal/model"
)

// Format is the packager's output container, the Go form of spec.md §6's
// enumerated `format` field.
type Format int

const (
	FormatFMP4 Format = iota
	FormatTS
	FormatVTTMP4
	FormatTTMLMP4
	FormatTTML

	// FormatPackedAudio is not named in spec.md §6's format enum (which lists
	// only {fmp4, ts, vtt_mp4, ttml_mp4, ttml}) but spec.md §2's
	// FormatDispatcher diagram treats PackedAudio as a fourth top-level
	// branch alongside fMP4/TS/TimedTextMp4. This packager resolves that
	// inconsistency by adding FormatPackedAudio as a selectable format,
	// documented in DESIGN.md.
	FormatPackedAudio
)

func (f Format) String() string {
	switch f {
	case FormatFMP4:
		return "fmp4"
	case FormatTS:
		return "ts"
	case FormatVTTMP4:
		return "vtt_mp4"
	case FormatTTMLMP4:
		return "ttml_mp4"
	case FormatTTML:
		return "ttml"
	case FormatPackedAudio:
		return "packed_audio"
	default:
		return "unknown"
	}
}

// ParseFormat parses the external string form of Format.
func ParseFormat(s string) (Format, model.Status) {
	switch s {
	case "fmp4":
		return FormatFMP4, model.OK
	case "ts":
		return FormatTS, model.OK
	case "vtt_mp4":
		return FormatVTTMP4, model.OK
	case "ttml_mp4":
		return FormatTTMLMP4, model.OK
	case "ttml":
		return FormatTTML, model.OK
	case "packed_audio":
		return FormatPackedAudio, model.OK
	default:
		return 0, model.NewStatus(model.CodeInvalidArgument, fmt.Sprintf("unrecognized format %q", s))
	}
}

// isTimedText reports whether f is handled by PackageTimedTextInit/
// PackageTimedText instead of PackageInit/Package.
func (f Format) isTimedText() bool {
	return f == FormatVTTMP4 || f == FormatTTMLMP4 || f == FormatTTML
}

// Config parameterizes a LivePackager, the Go struct form of spec.md §6's
// enumerated packager configuration.
type Config struct {
	Format    Format
	TrackType model.Kind

	// SegmentDurationSec is advisory: the façade trusts the caller's sample
	// boundaries and does not itself enforce segment duration.
	SegmentDurationSec float64

	IV    []byte
	Key   [16]byte
	KeyID [16]byte

	ProtectionScheme model.ProtectionScheme
	ProtectionSystem model.ProtectionSystem
	CryptByteBlock   byte
	SkipByteBlock    byte

	// SegmentNumber seeds the fMP4 moof sequence_number. internal/mpegts has
	// no hook for seeding TS continuity counters (mediacommon's Writer
	// always starts them at zero per instance), so for Format: ts this field
	// only affects logging context, not wire bytes; documented in DESIGN.md.
	SegmentNumber uint32

	M2TSOffsetMs int64

	TimedTextDecodeTime int64

	EmsgProcessing bool

	EnableDecryption bool
	DecryptionKey    [16]byte
	DecryptionKeyID  [16]byte
	// DecryptionScheme and DecryptionIV describe the input's own protection,
	// independent of ProtectionScheme/IV which describe the *output*'s.
	DecryptionScheme model.ProtectionScheme
	DecryptionIV     []byte

	// HasPreviousKeyID and PreviousKeyID let a caller orchestrating a crypto
	// period boundary tell PackageInit what key id the prior init segment
	// carried, so the new init segment's key-rotation event (spec.md §4.3)
	// can be detected and logged; the new key id's pssh is emitted either
	// way via KeyID/ProtectionSystem.
	HasPreviousKeyID bool
	PreviousKeyID    [16]byte
}

// Validate enforces the invariants spec.md §6 places on packager
// configuration before a LivePackager is constructed.
func (c Config) Validate() model.Status {
	if c.SegmentDurationSec < 0 {
		return model.NewStatus(model.CodeInvalidArgument, "segment_duration_sec must not be negative")
	}
	if c.M2TSOffsetMs < 0 {
		return model.NewStatus(model.CodeInvalidArgument, "m2ts_offset_ms must be non-negative")
	}
	switch len(c.IV) {
	case 0, 8, 16:
	default:
		return model.NewStatus(model.CodeInvalidArgument, "iv must be 0, 8, or 16 bytes")
	}
	if c.ProtectionScheme.Patterned() {
		if uint16(c.CryptByteBlock)+uint16(c.SkipByteBlock) > 255 {
			return model.NewStatus(model.CodeInvalidArgument, "crypt_byte_block + skip_byte_block must be <= 255")
		}
	}
	switch c.TrackType {
	case model.KindVideo, model.KindAudio, model.KindText:
	default:
		return model.NewStatus(model.CodeInvalidArgument, "track_type must be video, audio, or text")
	}
	return model.OK
}

// outputEncryption builds the EncryptionConfig spec.md §4.3 describes from
// cfg's key/IV/scheme fields, reporting false when protection_scheme is none.
func (c Config) outputEncryption() (model.EncryptionConfig, bool) {
	if c.ProtectionScheme == model.ProtectionNone {
		return model.EncryptionConfig{}, false
	}
	return model.EncryptionConfig{
		KeyID:             c.KeyID,
		Key:               c.Key,
		IV:                c.IV,
		Scheme:            c.ProtectionScheme,
		CryptByteBlock:    c.CryptByteBlock,
		SkipByteBlock:     c.SkipByteBlock,
		ProtectionSystems: c.ProtectionSystem,
	}, true
}
