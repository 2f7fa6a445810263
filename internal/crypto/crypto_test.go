package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/livepackager/internal/model"
)

func repeatByte(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestEngine_CENC_RoundTrip(t *testing.T) {
	key := repeatByte(0xAA, 16)
	iv := repeatByte(0x00, 16)

	plain := repeatByte(0x42, 100)

	enc, status := NewEngine(model.ProtectionCENC, key, iv, 0, 0)
	require.True(t, status.Ok(), status.Message())

	cipherText, status := enc.Transform(plain, nil, true)
	require.True(t, status.Ok(), status.Message())
	assert.NotEqual(t, plain, cipherText)

	// After encrypting 100 bytes the IV must have advanced by ceil(100/16) = 7.
	wantIV := repeatByte(0x00, 16)
	wantIV[15] = 7
	assert.Equal(t, wantIV, enc.CurrentIV())

	dec, status := NewEngine(model.ProtectionCENC, key, iv, 0, 0)
	require.True(t, status.Ok())
	plainAgain, status := dec.Transform(cipherText, nil, false)
	require.True(t, status.Ok(), status.Message())
	assert.Equal(t, plain, plainAgain)
}

func TestEngine_CBC1_RoundTrip(t *testing.T) {
	key := repeatByte(0x11, 16)
	iv := repeatByte(0x22, 16)
	plain := bytes.Repeat([]byte{0xA5}, 37) // not block-aligned

	enc, status := NewEngine(model.ProtectionCBC1, key, iv, 0, 0)
	require.True(t, status.Ok())
	cipherText, status := enc.Transform(plain, nil, true)
	require.True(t, status.Ok(), status.Message())

	dec, status := NewEngine(model.ProtectionCBC1, key, iv, 0, 0)
	require.True(t, status.Ok())
	plainAgain, status := dec.Transform(cipherText, nil, false)
	require.True(t, status.Ok(), status.Message())
	assert.Equal(t, plain, plainAgain)
}

func TestEngine_CENS_Patterned_RoundTrip(t *testing.T) {
	key := repeatByte(0x33, 16)
	iv := repeatByte(0x00, 16)
	plain := bytes.Repeat([]byte{0x7E}, 320)

	enc, status := NewEngine(model.ProtectionCENS, key, iv, 1, 9)
	require.True(t, status.Ok())
	cipherText, status := enc.Transform(plain, nil, true)
	require.True(t, status.Ok())
	assert.NotEqual(t, plain, cipherText)

	dec, status := NewEngine(model.ProtectionCENS, key, iv, 1, 9)
	require.True(t, status.Ok())
	plainAgain, status := dec.Transform(cipherText, nil, false)
	require.True(t, status.Ok())
	assert.Equal(t, plain, plainAgain)
}

func TestEngine_CBCS_Patterned_RoundTrip(t *testing.T) {
	key := repeatByte(0x44, 16)
	iv := repeatByte(0x55, 16)
	plain := bytes.Repeat([]byte{0x01}, 1000)

	enc, status := NewEngine(model.ProtectionCBCS, key, iv, 1, 9)
	require.True(t, status.Ok())
	cipherText, status := enc.Transform(plain, nil, true)
	require.True(t, status.Ok())

	// Constant IV: must not have advanced after encryption.
	assert.Equal(t, iv, enc.CurrentIV())

	dec, status := NewEngine(model.ProtectionCBCS, key, iv, 1, 9)
	require.True(t, status.Ok())
	plainAgain, status := dec.Transform(cipherText, nil, false)
	require.True(t, status.Ok())
	assert.Equal(t, plain, plainAgain)
}

// TestEngine_CBCS_FullEncryption_RoundTrip covers the unpatterned cbcs case
// (crypt/skip both 0, normalized to 1/0): the whole region must be encrypted
// as one continuous CBC chain, not just its first 16-byte block.
func TestEngine_CBCS_FullEncryption_RoundTrip(t *testing.T) {
	key := repeatByte(0x44, 16)
	iv := repeatByte(0x55, 16)
	plain := bytes.Repeat([]byte{0x02}, 160)

	enc, status := NewEngine(model.ProtectionCBCS, key, iv, 0, 0)
	require.True(t, status.Ok())
	cipherText, status := enc.Transform(plain, nil, true)
	require.True(t, status.Ok())

	assert.Equal(t, iv, enc.CurrentIV())
	assert.NotEqual(t, plain, cipherText)
	// Every plaintext block is identical; under a correctly-chained CBC
	// encryption the corresponding ciphertext blocks must not be.
	assert.NotEqual(t, cipherText[0:16], cipherText[16:32])

	dec, status := NewEngine(model.ProtectionCBCS, key, iv, 0, 0)
	require.True(t, status.Ok())
	plainAgain, status := dec.Transform(cipherText, nil, false)
	require.True(t, status.Ok())
	assert.Equal(t, plain, plainAgain)
}

func TestEngine_Subsamples_RoundTrip(t *testing.T) {
	key := repeatByte(0x77, 16)
	iv := repeatByte(0x01, 16)
	plain := append(bytes.Repeat([]byte{0x10}, 20), bytes.Repeat([]byte{0x20}, 48)...)
	subsamples := []model.SubsampleEntry{
		{ClearBytes: 20, CipherBytes: 48},
	}

	enc, status := NewEngine(model.ProtectionCENC, key, iv, 0, 0)
	require.True(t, status.Ok())
	cipherText, status := enc.Transform(plain, subsamples, true)
	require.True(t, status.Ok())
	assert.Equal(t, plain[:20], cipherText[:20], "clear bytes must pass through verbatim")

	dec, status := NewEngine(model.ProtectionCENC, key, iv, 0, 0)
	require.True(t, status.Ok())
	plainAgain, status := dec.Transform(cipherText, subsamples, false)
	require.True(t, status.Ok())
	assert.Equal(t, plain, plainAgain)
}

// TestEngine_Subsamples_ChainAcrossRegions exercises a sample with more than
// one cipher region (the normal case for NAL-unit-partitioned video). A
// naive implementation that resets the CTR counter at every region would
// produce the same output as encrypting each region independently; this
// compares against a reference encryption of the regions' cipher bytes
// concatenated into one continuous run, which is what a conformant
// decryptor expects.
func TestEngine_Subsamples_ChainAcrossRegions(t *testing.T) {
	key := repeatByte(0x99, 16)
	iv := repeatByte(0x03, 16)

	clear1 := bytes.Repeat([]byte{0xFF}, 5)
	cipherPart1 := bytes.Repeat([]byte{0x10}, 10) // not block-aligned
	clear2 := bytes.Repeat([]byte{0xEE}, 3)
	cipherPart2 := bytes.Repeat([]byte{0x20}, 21)

	plain := append(append(append(append([]byte{}, clear1...), cipherPart1...), clear2...), cipherPart2...)
	subsamples := []model.SubsampleEntry{
		{ClearBytes: uint16(len(clear1)), CipherBytes: uint32(len(cipherPart1))},
		{ClearBytes: uint16(len(clear2)), CipherBytes: uint32(len(cipherPart2))},
	}

	enc, status := NewEngine(model.ProtectionCENC, key, iv, 0, 0)
	require.True(t, status.Ok())
	cipherText, status := enc.Transform(plain, subsamples, true)
	require.True(t, status.Ok())

	refEngine, status := NewEngine(model.ProtectionCENC, key, iv, 0, 0)
	require.True(t, status.Ok())
	combinedCipher := append(append([]byte{}, cipherPart1...), cipherPart2...)
	refCipherText, status := refEngine.Transform(combinedCipher, nil, true)
	require.True(t, status.Ok())

	gotCipher1 := cipherText[len(clear1) : len(clear1)+len(cipherPart1)]
	gotCipher2 := cipherText[len(clear1)+len(cipherPart1)+len(clear2):]
	gotCombined := append(append([]byte{}, gotCipher1...), gotCipher2...)
	assert.Equal(t, refCipherText, gotCombined, "CTR keystream must continue across subsample regions within one sample")

	dec, status := NewEngine(model.ProtectionCENC, key, iv, 0, 0)
	require.True(t, status.Ok())
	plainAgain, status := dec.Transform(cipherText, subsamples, false)
	require.True(t, status.Ok())
	assert.Equal(t, plain, plainAgain)
}

// TestEngine_CBC1_Subsamples_ChainAcrossRegions is the CBC analogue: the
// chain IV carried into the second cipher region must be the last
// ciphertext block of the first, not the sample's original IV.
func TestEngine_CBC1_Subsamples_ChainAcrossRegions(t *testing.T) {
	key := repeatByte(0x66, 16)
	iv := repeatByte(0x09, 16)

	cipherPart1 := bytes.Repeat([]byte{0xA1}, 16)
	clear1 := bytes.Repeat([]byte{0xFF}, 4)
	cipherPart2 := bytes.Repeat([]byte{0xA2}, 32)

	plain := append(append(append([]byte{}, cipherPart1...), clear1...), cipherPart2...)
	subsamples := []model.SubsampleEntry{
		{ClearBytes: 0, CipherBytes: uint32(len(cipherPart1))},
		{ClearBytes: uint16(len(clear1)), CipherBytes: uint32(len(cipherPart2))},
	}

	enc, status := NewEngine(model.ProtectionCBC1, key, iv, 0, 0)
	require.True(t, status.Ok())
	cipherText, status := enc.Transform(plain, subsamples, true)
	require.True(t, status.Ok())

	refEngine, status := NewEngine(model.ProtectionCBC1, key, iv, 0, 0)
	require.True(t, status.Ok())
	combinedCipher := append(append([]byte{}, cipherPart1...), cipherPart2...)
	refCipherText, status := refEngine.Transform(combinedCipher, nil, true)
	require.True(t, status.Ok())

	gotCipher1 := cipherText[:len(cipherPart1)]
	gotCipher2 := cipherText[len(cipherPart1)+len(clear1):]
	gotCombined := append(append([]byte{}, gotCipher1...), gotCipher2...)
	assert.Equal(t, refCipherText, gotCombined, "CBC chain must continue across subsample regions within one sample")

	dec, status := NewEngine(model.ProtectionCBC1, key, iv, 0, 0)
	require.True(t, status.Ok())
	plainAgain, status := dec.Transform(cipherText, subsamples, false)
	require.True(t, status.Ok())
	assert.Equal(t, plain, plainAgain)
}

func TestNewEngine_RejectsBadKeySize(t *testing.T) {
	_, status := NewEngine(model.ProtectionCENC, repeatByte(0, 10), repeatByte(0, 16), 0, 0)
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeEncryptionFailure, status.Code())
}

func TestNewEngine_RejectsBadIVSize(t *testing.T) {
	_, status := NewEngine(model.ProtectionCENC, repeatByte(0, 16), repeatByte(0, 12), 0, 0)
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeEncryptionFailure, status.Code())
}

func TestEngine_Transform_SubsampleOverflow(t *testing.T) {
	enc, status := NewEngine(model.ProtectionCENC, repeatByte(0, 16), repeatByte(0, 16), 0, 0)
	require.True(t, status.Ok())

	_, status = enc.Transform(repeatByte(0, 10), []model.SubsampleEntry{{ClearBytes: 5, CipherBytes: 50}}, true)
	assert.False(t, status.Ok())
	assert.Equal(t, model.CodeEncryptionFailure, status.Code())
}

func TestEngine_NoneScheme_Passthrough(t *testing.T) {
	enc, status := NewEngine(model.ProtectionNone, nil, nil, 0, 0)
	require.True(t, status.Ok())
	plain := []byte("hello world")
	out, status := enc.Transform(plain, nil, true)
	require.True(t, status.Ok())
	assert.Equal(t, plain, out)
}
