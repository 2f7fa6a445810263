package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/livepackager/internal/model"
	"github.com/jmylchreest/livepackager/internal/packager"
	"github.com/jmylchreest/livepackager/pkg/duration"
)

// registerSegmentFlags adds the flags shared by the init and package
// commands: output format/track selection plus encryption parameters.
func registerSegmentFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "fmp4", "output format: fmp4, ts, vtt_mp4, ttml_mp4, ttml, packed_audio")
	cmd.Flags().String("track-type", "video", "track type: video, audio, text")
	cmd.Flags().String("segment-duration", "0s", "advisory segment duration, e.g. 6s, 1.5s, 2000ms")
	cmd.Flags().Uint32("segment-number", 1, "moof sequence_number (fmp4) or continuity-counter seed context (ts)")
	cmd.Flags().Int64("m2ts-offset-ms", 0, "timestamp offset added to every PTS/DTS before emission")
	cmd.Flags().Int64("timed-text-decode-time", 0, "tfdt base_media_decode_time for vtt_mp4/ttml_mp4 output")
	cmd.Flags().Bool("emsg-processing", false, "copy emsg boxes from input to output segments")

	cmd.Flags().String("protection-scheme", "none", "output protection scheme: none, sample_aes, aes_128, cenc, cbcs, cens, cbc1")
	cmd.Flags().String("key", "", "16-byte content key, hex-encoded")
	cmd.Flags().String("key-id", "", "16-byte key id, hex-encoded")
	cmd.Flags().String("iv", "", "8- or 16-byte IV, hex-encoded")
	cmd.Flags().String("protection-system", "", "comma-separated DRM systems for pssh generation: common,widevine,playready,fairplay,marlin")
	cmd.Flags().Uint8("crypt-byte-block", 0, "patterned-scheme crypt block count (16-byte AES blocks)")
	cmd.Flags().Uint8("skip-byte-block", 0, "patterned-scheme skip block count (16-byte AES blocks)")

	cmd.Flags().Bool("enable-decryption", false, "decrypt input samples before re-packaging")
	cmd.Flags().String("decryption-key", "", "16-byte input decryption key, hex-encoded")
	cmd.Flags().String("decryption-key-id", "", "16-byte input decryption key id, hex-encoded")
	cmd.Flags().String("decryption-iv", "", "input decryption IV, hex-encoded")
	cmd.Flags().String("decryption-scheme", "cenc", "input protection scheme: cenc, cbc1, cens, cbcs")
}

// buildConfig assembles a packager.Config from the flags registerSegmentFlags
// declared, resolving the spec's external protection_scheme vocabulary
// (which conflates a transport convention, "sample_aes"/"aes_128", with the
// AES mode) onto internal/model's scheme enum: sample_aes maps to cbcs (the
// scheme HLS Sample-AES actually uses) and aes_128 maps to cbc1, per
// DESIGN.md's Open Question resolution; cenc/cbcs/cens/cbc1 pass through
// unchanged for callers that already know the AES-mode vocabulary.
func buildConfig(cmd *cobra.Command) (packager.Config, error) {
	formatStr, _ := cmd.Flags().GetString("format")
	format, status := packager.ParseFormat(formatStr)
	if !status.Ok() {
		return packager.Config{}, status
	}

	trackTypeStr, _ := cmd.Flags().GetString("track-type")
	trackType, err := parseTrackType(trackTypeStr)
	if err != nil {
		return packager.Config{}, err
	}

	segmentDurationStr, _ := cmd.Flags().GetString("segment-duration")
	segmentDuration, err := duration.Parse(segmentDurationStr)
	if err != nil {
		return packager.Config{}, fmt.Errorf("--segment-duration: %w", err)
	}
	segmentNumber, _ := cmd.Flags().GetUint32("segment-number")
	m2tsOffset, _ := cmd.Flags().GetInt64("m2ts-offset-ms")
	decodeTime, _ := cmd.Flags().GetInt64("timed-text-decode-time")
	emsg, _ := cmd.Flags().GetBool("emsg-processing")

	schemeStr, _ := cmd.Flags().GetString("protection-scheme")
	scheme, err := parseProtectionScheme(schemeStr)
	if err != nil {
		return packager.Config{}, err
	}

	keyHex, _ := cmd.Flags().GetString("key")
	keyIDHex, _ := cmd.Flags().GetString("key-id")
	ivHex, _ := cmd.Flags().GetString("iv")
	key, err := decodeFixed16(keyHex)
	if err != nil {
		return packager.Config{}, fmt.Errorf("--key: %w", err)
	}
	keyID, err := decodeFixed16(keyIDHex)
	if err != nil {
		return packager.Config{}, fmt.Errorf("--key-id: %w", err)
	}
	iv, err := hexDecodeOptional(ivHex)
	if err != nil {
		return packager.Config{}, fmt.Errorf("--iv: %w", err)
	}

	systemStr, _ := cmd.Flags().GetString("protection-system")
	system, err := parseProtectionSystems(systemStr)
	if err != nil {
		return packager.Config{}, err
	}

	cryptByteBlock, _ := cmd.Flags().GetUint8("crypt-byte-block")
	skipByteBlock, _ := cmd.Flags().GetUint8("skip-byte-block")

	enableDecryption, _ := cmd.Flags().GetBool("enable-decryption")
	decKeyHex, _ := cmd.Flags().GetString("decryption-key")
	decKeyIDHex, _ := cmd.Flags().GetString("decryption-key-id")
	decIVHex, _ := cmd.Flags().GetString("decryption-iv")
	decSchemeStr, _ := cmd.Flags().GetString("decryption-scheme")

	decKey, err := decodeFixed16(decKeyHex)
	if err != nil {
		return packager.Config{}, fmt.Errorf("--decryption-key: %w", err)
	}
	decKeyID, err := decodeFixed16(decKeyIDHex)
	if err != nil {
		return packager.Config{}, fmt.Errorf("--decryption-key-id: %w", err)
	}
	decIV, err := hexDecodeOptional(decIVHex)
	if err != nil {
		return packager.Config{}, fmt.Errorf("--decryption-iv: %w", err)
	}
	decScheme, err := parseProtectionScheme(decSchemeStr)
	if err != nil {
		return packager.Config{}, err
	}

	return packager.Config{
		Format:              format,
		TrackType:           trackType,
		SegmentDurationSec:  segmentDuration.Seconds(),
		IV:                  iv,
		Key:                 key,
		KeyID:               keyID,
		ProtectionScheme:    scheme,
		ProtectionSystem:    system,
		CryptByteBlock:      cryptByteBlock,
		SkipByteBlock:       skipByteBlock,
		SegmentNumber:       segmentNumber,
		M2TSOffsetMs:        m2tsOffset,
		TimedTextDecodeTime: decodeTime,
		EmsgProcessing:      emsg,
		EnableDecryption:    enableDecryption,
		DecryptionKey:       decKey,
		DecryptionKeyID:     decKeyID,
		DecryptionScheme:    decScheme,
		DecryptionIV:        decIV,
	}, nil
}

func parseTrackType(s string) (model.Kind, error) {
	switch s {
	case "video":
		return model.KindVideo, nil
	case "audio":
		return model.KindAudio, nil
	case "text":
		return model.KindText, nil
	default:
		return 0, fmt.Errorf("unrecognized track-type %q", s)
	}
}

func parseProtectionScheme(s string) (model.ProtectionScheme, error) {
	switch s {
	case "", "none":
		return model.ProtectionNone, nil
	case "cenc":
		return model.ProtectionCENC, nil
	case "cbc1", "aes_128":
		return model.ProtectionCBC1, nil
	case "cens":
		return model.ProtectionCENS, nil
	case "cbcs", "sample_aes":
		return model.ProtectionCBCS, nil
	default:
		return 0, fmt.Errorf("unrecognized protection-scheme %q", s)
	}
}

func parseProtectionSystems(s string) (model.ProtectionSystem, error) {
	if s == "" {
		return 0, nil
	}
	var out model.ProtectionSystem
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "common":
			out |= model.ProtectionSystemCommon
		case "widevine":
			out |= model.ProtectionSystemWidevine
		case "playready":
			out |= model.ProtectionSystemPlayReady
		case "fairplay":
			out |= model.ProtectionSystemFairPlay
		case "marlin":
			out |= model.ProtectionSystemMarlin
		default:
			return 0, fmt.Errorf("unrecognized protection-system %q", name)
		}
	}
	return out, nil
}

func decodeFixed16(s string) ([16]byte, error) {
	var out [16]byte
	if s == "" {
		return out, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != 16 {
		return out, fmt.Errorf("must decode to 16 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func hexDecodeOptional(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
