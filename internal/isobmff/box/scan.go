package box

import (
	"encoding/binary"
	"fmt"
)

// entry describes one box found while scanning a flat byte range: its type,
// and the half-open [Start, End) byte range including the box's own header.
type entry struct {
	Type  [4]byte
	Start int
	End   int
}

// scanChildren walks the flat sequence of sibling boxes in data[offset:end),
// returning one entry per top-level box found. It does not recurse; callers
// recurse by calling scanChildren again over a found box's content range.
func scanChildren(data []byte, offset, end int) ([]entry, error) {
	var out []entry
	for offset < end {
		if offset+8 > end {
			return nil, fmt.Errorf("truncated box header at offset %d", offset)
		}
		size := uint64(binary.BigEndian.Uint32(data[offset : offset+4]))
		var boxType [4]byte
		copy(boxType[:], data[offset+4:offset+8])

		headerLen := 8
		if size == 1 {
			if offset+16 > end {
				return nil, fmt.Errorf("truncated extended box header at offset %d", offset)
			}
			size = binary.BigEndian.Uint64(data[offset+8 : offset+16])
			headerLen = 16
		} else if size == 0 {
			size = uint64(end - offset)
		}
		if size < uint64(headerLen) || offset+int(size) > end {
			return nil, fmt.Errorf("box %q at offset %d declares an invalid size", boxType, offset)
		}

		out = append(out, entry{Type: boxType, Start: offset, End: offset + int(size)})
		offset += int(size)
	}
	return out, nil
}

// find locates the first top-level box of the given type within
// data[offset:end).
func find(data []byte, offset, end int, boxType string) (entry, bool, error) {
	entries, err := scanChildren(data, offset, end)
	if err != nil {
		return entry{}, false, err
	}
	var want [4]byte
	copy(want[:], boxType)
	for _, e := range entries {
		if e.Type == want {
			return e, true, nil
		}
	}
	return entry{}, false, nil
}

// contentRange returns the [start, end) byte range of box e's content
// (payload + children), skipping its header. It does not know whether e is
// a FullBox; callers that need to skip the version/flags word do so
// themselves via fullBoxContentStart.
func contentRange(data []byte, e entry) (int, int) {
	headerLen := 8
	if binary.BigEndian.Uint32(data[e.Start:e.Start+4]) == 1 {
		headerLen = 16
	}
	return e.Start + headerLen, e.End
}

// fullBoxContentStart returns the content start offset for a box known to
// be a FullBox (skipping the 4-byte version+flags word).
func fullBoxContentStart(data []byte, e entry) int {
	start, _ := contentRange(data, e)
	return start + 4
}

// trackIDFromTfhd reads the track_ID field (the first 4 bytes of a tfhd
// box's FullBox content) out of data.
func trackIDFromTfhd(data []byte, tfhd entry) uint32 {
	start := fullBoxContentStart(data, tfhd)
	return binary.BigEndian.Uint32(data[start : start+4])
}
