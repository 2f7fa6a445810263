package codecs

import "encoding/binary"

// WebM CTR-encrypted block signal bytes (WebM Encryption specification).
const (
	webmSignalClear                = 0x00
	webmSignalEncrypted            = 0x01
	webmSignalEncryptedPartitioned = 0x03
)

// WebMPartition is one (offset) boundary within a partitioned, partially
// encrypted WebM block.
type WebMPartition struct {
	Offset uint32
}

// EncodeWebMSignalByte prepends the WebM CTR-encryption signal byte and, for
// encrypted blocks, the IV and optional partition table, per spec.md §4.4's
// WebM bitstream paragraph.
func EncodeWebMSignalByte(payload []byte, encrypted bool, iv []byte, partitions []WebMPartition) []byte {
	if !encrypted {
		return append([]byte{webmSignalClear}, payload...)
	}

	if len(partitions) == 0 {
		out := make([]byte, 0, 1+len(iv)+len(payload))
		out = append(out, webmSignalEncrypted)
		out = append(out, iv...)
		return append(out, payload...)
	}

	out := make([]byte, 0, 1+len(iv)+1+4*len(partitions)+len(payload))
	out = append(out, webmSignalEncryptedPartitioned)
	out = append(out, iv...)
	out = append(out, byte(len(partitions)))
	for _, p := range partitions {
		offsetBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(offsetBytes, p.Offset)
		out = append(out, offsetBytes...)
	}
	return append(out, payload...)
}
