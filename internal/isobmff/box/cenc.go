package box

import (
	"github.com/jmylchreest/livepackager/internal/model"
)

// sencSubsampleFlag marks that each sample's IV is followed by a subsample
// table (ISO/IEC 23001-7 §7.2); clear for full-sample encryption.
const sencSubsampleFlag = 0x000002

// SampleAuxInfo is one sample's encryption metadata, as recorded while the
// track's media samples are encrypted.
type SampleAuxInfo struct {
	IV         []byte
	Subsamples []model.SubsampleEntry
}

// Senc builds the Sample Encryption Box (senc, ISO/IEC 23001-7 §7.1), a
// non-standard but universally recognized box carrying per-sample IVs and,
// for patterned/subsample-protected tracks, the subsample size table.
func Senc(samples []SampleAuxInfo) *Box {
	flags := uint32(0)
	for _, s := range samples {
		if len(s.Subsamples) > 0 {
			flags = sencSubsampleFlag
			break
		}
	}

	payload := be32(uint32(len(samples)))
	for _, s := range samples {
		payload = append(payload, s.IV...)
		if flags&sencSubsampleFlag != 0 {
			payload = append(payload, be16(uint16(len(s.Subsamples)))...)
			for _, sub := range s.Subsamples {
				payload = append(payload, be16(sub.ClearBytes)...)
				payload = append(payload, be32(sub.CipherBytes)...)
			}
		}
	}
	return NewFull("senc", 0, flags, payload)
}

// sencEntrySize returns the encoded byte size of one senc sample entry,
// matching the layout Senc writes, used by Saiz to fill sample_info_size.
func sencEntrySize(s SampleAuxInfo) int {
	n := len(s.IV)
	if len(s.Subsamples) > 0 {
		n += 2 + 6*len(s.Subsamples)
	}
	return n
}

// Saiz builds the Sample Auxiliary Information Sizes Box (saiz, ISO/IEC
// 14496-12 §8.7.9), one entry per sample recording how many bytes of aux
// info (IV + optional subsample table) that sample's senc entry occupies.
func Saiz(samples []SampleAuxInfo) *Box {
	sizes := make([]byte, len(samples))
	uniform := true
	for i, s := range samples {
		n := sencEntrySize(s)
		if n > 255 {
			// sample_info_size is a single byte; a uniform IV/subsample
			// layout for this packager never approaches 255 bytes, but
			// guard against truncation rather than silently wrapping.
			n = 255
		}
		sizes[i] = byte(n)
		if i > 0 && sizes[i] != sizes[0] {
			uniform = false
		}
	}

	var payload []byte
	if uniform && len(sizes) > 0 {
		payload = append(payload, sizes[0])
		payload = append(payload, be32(uint32(len(samples)))...)
	} else {
		payload = append(payload, 0x00)
		payload = append(payload, be32(uint32(len(samples)))...)
		payload = append(payload, sizes...)
	}
	return NewFull("saiz", 0, 0, payload)
}

// Saio builds the Sample Auxiliary Information Offsets Box (saio, ISO/IEC
// 14496-12 §8.7.9): a single entry pointing at the first byte of senc's
// per-sample data (immediately after its FullBox header and sample_count
// field), expressed as an offset from the start of the enclosing moof, the
// same anchor trun.data_offset uses.
func Saio(offsetFromMoofStart uint64) *Box {
	if offsetFromMoofStart > 0xFFFFFFFF {
		payload := append([]byte{}, be32(1)...) // entry_count
		payload = append(payload, be64(offsetFromMoofStart)...)
		return NewFull("saio", 1, 0, payload)
	}
	payload := append([]byte{}, be32(1)...)
	payload = append(payload, be32(uint32(offsetFromMoofStart))...)
	return NewFull("saio", 0, 0, payload)
}

// Frma builds the Original Format Box (frma), recording the sample entry's
// pre-encryption format (e.g. "avc1", "mp4a").
func Frma(originalFormat string) *Box {
	return New("frma", []byte(originalFormat))
}

// Schm builds the Scheme Type Box (schm), naming the protection scheme
// ("cenc", "cbc1", "cens", "cbcs") by its four-character scheme type.
func Schm(scheme model.ProtectionScheme) *Box {
	payload := []byte(scheme.String())
	payload = append(payload, be32(0x00010000)...) // scheme_version 1.0
	return NewFull("schm", 0, 0, payload)
}

// Tenc builds the Track Encryption Box (tenc, ISO/IEC 23001-7 §8.2),
// version 1 so that pattern-encrypted (cens/cbcs) tracks can carry a
// non-trivial default_crypt_byte_block/default_skip_byte_block.
func Tenc(cfg model.EncryptionConfig) *Box {
	crypt, skip := cfg.CryptByteBlock, cfg.SkipByteBlock
	if cfg.Scheme.Patterned() {
		crypt, skip = model.NormalizedPattern(crypt, skip)
	}

	perSampleIVSize := byte(len(cfg.IV))
	if cfg.Scheme.ConstantIV() {
		perSampleIVSize = 0 // default_Per_Sample_IV_Size = 0 signals constant IV below
	}

	payload := []byte{
		0x00,                // reserved
		(crypt << 4) | skip, // default_crypt_byte_block / default_skip_byte_block
		0x01,                // default_isProtected
		perSampleIVSize,
	}
	payload = append(payload, cfg.KeyID[:]...)
	if cfg.Scheme.ConstantIV() {
		payload = append(payload, byte(len(cfg.IV)))
		payload = append(payload, cfg.IV...)
	}

	return NewFull("tenc", 1, 0, payload)
}

// Schi builds the Scheme Information Box (schi), the sinf container for
// scheme-specific metadata: here, just tenc.
func Schi(tenc *Box) *Box {
	return New("schi", nil, tenc)
}

// Sinf builds the Protection Scheme Information Box (sinf), wrapping frma,
// schm, and schi under the encrypted sample entry (encv/enca) it replaces
// the cleartext entry's format fields for.
func Sinf(originalFormat string, cfg model.EncryptionConfig) *Box {
	return New("sinf", nil, Frma(originalFormat), Schm(cfg.Scheme), Schi(Tenc(cfg)))
}

// Pssh builds a Protection System Specific Header Box (pssh, ISO/IEC
// 23001-7 §8.1) carrying opaque DRM-system-specific init data.
func Pssh(systemID [16]byte, keyIDs [][16]byte, data []byte) *Box {
	payload := append([]byte{}, systemID[:]...)
	version := byte(0)
	if len(keyIDs) > 0 {
		version = 1
		payload = append(payload, be32(uint32(len(keyIDs)))...)
		for _, kid := range keyIDs {
			payload = append(payload, kid[:]...)
		}
	}
	payload = append(payload, be32(uint32(len(data)))...)
	payload = append(payload, data...)
	return NewFull("pssh", version, 0, payload)
}

// Well-known DRM system IDs (ISO/IEC 23001-7 §8.1, DASH-IF IOP §7.3.2) for
// the systems model.ProtectionSystem's bitmask names.
var (
	systemIDCommon     = [16]byte{0x10, 0x77, 0xef, 0xec, 0xc0, 0xb2, 0x4d, 0x02, 0xac, 0xe3, 0x3c, 0x1e, 0x52, 0xe2, 0xfb, 0x4b}
	systemIDWidevine   = [16]byte{0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce, 0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed}
	systemIDPlayReady  = [16]byte{0x9a, 0x04, 0xf0, 0x79, 0x98, 0x40, 0x42, 0x86, 0xab, 0x92, 0xe6, 0x5b, 0xe0, 0x88, 0x5f, 0x95}
	systemIDFairPlay   = [16]byte{0x94, 0xce, 0x86, 0xfb, 0x07, 0xff, 0x4f, 0x43, 0xad, 0xb8, 0x93, 0xd2, 0xfa, 0x96, 0x8c, 0xa2}
	systemIDMarlin     = [16]byte{0x5e, 0x62, 0x9a, 0xf5, 0x38, 0xda, 0x40, 0x63, 0x89, 0x77, 0x97, 0xff, 0xbd, 0x99, 0x02, 0xd4}
)

// PsshBoxesForSystems builds one pssh box per DRM system set in systems,
// each carrying keyID as its single key id and no system-specific init data
// (a bare "common" pssh is valid without a license-server round trip; a real
// Widevine/PlayReady/FairPlay pssh payload would be supplied by the external
// key-acquisition collaborator spec.md places out of scope).
func PsshBoxesForSystems(systems model.ProtectionSystem, keyID [16]byte) []*Box {
	var boxes []*Box
	add := func(bit model.ProtectionSystem, systemID [16]byte) {
		if systems&bit != 0 {
			boxes = append(boxes, Pssh(systemID, [][16]byte{keyID}, nil))
		}
	}
	add(model.ProtectionSystemCommon, systemIDCommon)
	add(model.ProtectionSystemWidevine, systemIDWidevine)
	add(model.ProtectionSystemPlayReady, systemIDPlayReady)
	add(model.ProtectionSystemFairPlay, systemIDFairPlay)
	add(model.ProtectionSystemMarlin, systemIDMarlin)
	return boxes
}
