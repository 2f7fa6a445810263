package packager

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/livepackager/internal/model"
)

func TestDetectKeyRotation(t *testing.T) {
	keyA := [16]byte{0x01}
	keyB := [16]byte{0x02}

	t.Run("no previous segment", func(t *testing.T) {
		_, rotated := detectKeyRotation(model.EncryptionConfig{KeyID: keyA}, model.EncryptionConfig{KeyID: keyA}, false)
		assert.False(t, rotated)
	})

	t.Run("same key id", func(t *testing.T) {
		_, rotated := detectKeyRotation(model.EncryptionConfig{KeyID: keyA}, model.EncryptionConfig{KeyID: keyA}, true)
		assert.False(t, rotated)
	})

	t.Run("key id changed", func(t *testing.T) {
		info, rotated := detectKeyRotation(model.EncryptionConfig{KeyID: keyA}, model.EncryptionConfig{KeyID: keyB}, true)
		assert.True(t, rotated)
		if assert.NotNil(t, info.KeyRotation) {
			assert.Equal(t, keyB, info.KeyRotation.KeyID)
		}
	})
}
