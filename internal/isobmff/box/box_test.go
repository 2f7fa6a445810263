package box

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_ComputeSizeAndMarshal_PlainBox(t *testing.T) {
	b := New("free", []byte{0xAA, 0xBB, 0xCC})
	size := b.ComputeSize()
	assert.EqualValues(t, 11, size) // 8-byte header + 3-byte payload

	var buf bytes.Buffer
	require.NoError(t, b.Marshal(&buf))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x0B, 'f', 'r', 'e', 'e', 0xAA, 0xBB, 0xCC}, buf.Bytes())
}

func TestBox_ComputeSizeAndMarshal_FullBox(t *testing.T) {
	b := NewFull("saio", 0, 0, []byte{0x00, 0x00, 0x00, 0x01})
	size := b.ComputeSize()
	assert.EqualValues(t, 16, size) // 8 header + 4 version/flags + 4 payload

	var buf bytes.Buffer
	require.NoError(t, b.Marshal(&buf))
	out := buf.Bytes()
	assert.Equal(t, uint32(16), beUint32(out[0:4]))
	assert.Equal(t, "saio", string(out[4:8]))
	assert.Equal(t, uint32(0), beUint32(out[8:12])) // version(0)+flags(0)
}

func TestBox_ComputeSizeAndMarshal_NestedChildren(t *testing.T) {
	child := New("frma", []byte("avc1"))
	parent := New("sinf", nil, child)

	size := parent.ComputeSize()
	assert.EqualValues(t, 8+8+4, size)

	var buf bytes.Buffer
	require.NoError(t, parent.Marshal(&buf))
	out := buf.Bytes()
	assert.Equal(t, "sinf", string(out[4:8]))
	assert.Equal(t, "frma", string(out[12:16]))
	assert.Equal(t, "avc1", string(out[16:20]))
}

func TestBox_Marshal_FailsWithoutComputeSize(t *testing.T) {
	b := New("free", nil)
	var buf bytes.Buffer
	err := b.Marshal(&buf)
	assert.Error(t, err)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
