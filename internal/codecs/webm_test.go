package codecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeWebMSignalByte_Clear(t *testing.T) {
	out := EncodeWebMSignalByte([]byte{0xAA, 0xBB}, false, nil, nil)
	assert.Equal(t, []byte{webmSignalClear, 0xAA, 0xBB}, out)
}

func TestEncodeWebMSignalByte_Encrypted(t *testing.T) {
	iv := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	out := EncodeWebMSignalByte([]byte{0xAA}, true, iv, nil)
	assert.EqualValues(t, webmSignalEncrypted, out[0])
	assert.Equal(t, iv, out[1:9])
	assert.Equal(t, []byte{0xAA}, out[9:])
}

func TestEncodeWebMSignalByte_Partitioned(t *testing.T) {
	iv := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	partitions := []WebMPartition{{Offset: 100}, {Offset: 300}}
	out := EncodeWebMSignalByte([]byte{0xCC, 0xDD}, true, iv, partitions)

	assert.EqualValues(t, webmSignalEncryptedPartitioned, out[0])
	assert.Equal(t, iv, out[1:9])
	assert.EqualValues(t, 2, out[9])
	assert.Equal(t, []byte{0xCC, 0xDD}, out[len(out)-2:])
}
