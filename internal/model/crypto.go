package model

// ProtectionScheme is the discriminated union of sample-encryption schemes
// the crypto engine supports.
type ProtectionScheme int

const (
	ProtectionNone ProtectionScheme = iota
	ProtectionCENC
	ProtectionCBC1
	ProtectionCENS
	ProtectionCBCS
)

func (p ProtectionScheme) String() string {
	switch p {
	case ProtectionCENC:
		return "cenc"
	case ProtectionCBC1:
		return "cbc1"
	case ProtectionCENS:
		return "cens"
	case ProtectionCBCS:
		return "cbcs"
	default:
		return "none"
	}
}

// Patterned reports whether this scheme applies a crypt/skip byte-block
// pattern within each cipher region, as opposed to encrypting it whole.
func (p ProtectionScheme) Patterned() bool {
	return p == ProtectionCENS || p == ProtectionCBCS
}

// ConstantIV reports whether the scheme holds one IV across every sample
// instead of advancing it per sample.
func (p ProtectionScheme) ConstantIV() bool {
	return p == ProtectionCBCS
}

// SubsampleEntry describes one (clear, cipher) byte-count pair within a
// sample. An empty subsample list on EncryptionConfig/DecryptConfig means
// "full-sample encryption": the whole payload is cipher material.
type SubsampleEntry struct {
	ClearBytes  uint16
	CipherBytes uint32
}

// ProtectionSystem is a bitmask over the DRM systems a key-rotation event's
// pssh metadata should be generated for.
type ProtectionSystem uint8

const (
	ProtectionSystemCommon ProtectionSystem = 1 << iota
	ProtectionSystemWidevine
	ProtectionSystemPlayReady
	ProtectionSystemFairPlay
	ProtectionSystemMarlin
)

// EncryptionConfig parameterizes encrypting a track's samples.
type EncryptionConfig struct {
	KeyID  [16]byte
	Key    [16]byte
	IV     []byte // 8 or 16 bytes
	Scheme ProtectionScheme

	// CryptByteBlock/SkipByteBlock are in units of 16-byte AES blocks and
	// are only meaningful for patterned schemes; 0/0 normalizes to 1/0
	// (full encryption) per spec.md §4.3.
	CryptByteBlock byte
	SkipByteBlock  byte

	Subsamples []SubsampleEntry

	ProtectionSystems ProtectionSystem
}

// DecryptConfig parameterizes decrypting a track's samples; same shape as
// EncryptionConfig but carried per-sample on already-encrypted input.
type DecryptConfig struct {
	KeyID  [16]byte
	Key    [16]byte
	IV     []byte
	Scheme ProtectionScheme

	CryptByteBlock byte
	SkipByteBlock  byte

	Subsamples []SubsampleEntry
}

// NormalizedPattern returns the effective (crypt, skip) block counts,
// applying the 0/0 -> 1/0 normalization spec.md §4.3 mandates.
func NormalizedPattern(crypt, skip byte) (byte, byte) {
	if crypt == 0 && skip == 0 {
		return 1, 0
	}
	return crypt, skip
}
