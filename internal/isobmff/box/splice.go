package box

import (
	"encoding/binary"
	"fmt"
)

// trunDataOffsetFlag is trun's tr_flags bit indicating data_offset is
// present (ISO/IEC 14496-12 §8.8.8.1); spec.md §4.1 requires it always set.
const trunDataOffsetFlag = 0x000001

// SpliceTrafAuxInfo inserts senc, saiz, and saio boxes as the trailing
// children of the traf belonging to trackID within the moof found in
// segment, and patches every trun.data_offset in that moof (across all
// tracks, not just trackID's) to account for mdat having shifted further
// into the file by the inserted bytes.
//
// This is the two-pass approach spec.md §9 describes applied after the
// fact: mediacommon has already computed sizes and offsets for the
// box graph it knows about, so rather than re-deriving that graph, the
// splice computes the delta its insertion introduces and propagates it
// through the handful of fields that reference absolute/relative
// positions (trun.data_offset, saio's own offset, and the grown box sizes).
func SpliceTrafAuxInfo(segment []byte, trackID uint32, samples []SampleAuxInfo) ([]byte, error) {
	moof, ok, err := find(segment, 0, len(segment), "moof")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no moof box found")
	}
	moofContentStart, moofContentEnd := contentRange(segment, moof)

	trafEntries, err := scanChildren(segment, moofContentStart, moofContentEnd)
	if err != nil {
		return nil, err
	}

	var target *entry
	var allTrunDataOffsetPositions []int
	for i := range trafEntries {
		traf := trafEntries[i]
		if traf.Type != fourCC("traf") {
			continue
		}
		trafContentStart, trafContentEnd := contentRange(segment, traf)
		children, err := scanChildren(segment, trafContentStart, trafContentEnd)
		if err != nil {
			return nil, err
		}

		var tfhd, trun *entry
		for j := range children {
			switch children[j].Type {
			case fourCC("tfhd"):
				tfhd = &children[j]
			case fourCC("trun"):
				trun = &children[j]
			}
		}
		if trun != nil {
			if pos, ok := trunDataOffsetPosition(segment, *trun); ok {
				allTrunDataOffsetPositions = append(allTrunDataOffsetPositions, pos)
			}
		}
		if tfhd != nil && trackIDFromTfhd(segment, *tfhd) == trackID {
			t := traf
			target = &t
		}
	}
	if target == nil {
		return nil, fmt.Errorf("no traf for track %d found in moof", trackID)
	}

	_, trafContentEnd := contentRange(segment, *target)
	sencOffsetWithinMoof := uint64(trafContentEnd-moof.Start) + 16 // past senc's header+version/flags+sample_count

	senc := Senc(samples)
	saiz := Saiz(samples)
	saio := Saio(sencOffsetWithinMoof)

	sencBytes, err := MarshalToBytes(senc)
	if err != nil {
		return nil, err
	}
	saizBytes, err := MarshalToBytes(saiz)
	if err != nil {
		return nil, err
	}
	saioBytes, err := MarshalToBytes(saio)
	if err != nil {
		return nil, err
	}
	insertedLen := len(sencBytes) + len(saizBytes) + len(saioBytes)

	out := make([]byte, 0, len(segment)+insertedLen)
	out = append(out, segment[:trafContentEnd]...)
	out = append(out, sencBytes...)
	out = append(out, saizBytes...)
	out = append(out, saioBytes...)
	out = append(out, segment[trafContentEnd:]...)

	for _, p := range allTrunDataOffsetPositions {
		newPos := p
		if p > trafContentEnd {
			newPos += insertedLen
		}
		cur := int32(binary.BigEndian.Uint32(out[newPos : newPos+4]))
		binary.BigEndian.PutUint32(out[newPos:newPos+4], uint32(cur+int32(insertedLen)))
	}

	if err := rewriteSizeAt(out, moof.Start, insertedLen); err != nil {
		return nil, err
	}
	if err := rewriteSizeAt(out, target.Start, insertedLen); err != nil {
		return nil, err
	}

	return out, nil
}

// trunDataOffsetPosition returns the absolute byte offset of trun's
// data_offset field, if tr_flags marks it present.
func trunDataOffsetPosition(data []byte, trun entry) (int, bool) {
	flags := binary.BigEndian.Uint32(data[trun.Start+8:trun.Start+12]) & 0x00FFFFFF
	if flags&trunDataOffsetFlag == 0 {
		return 0, false
	}
	contentStart := fullBoxContentStart(data, trun)
	return contentStart + 4, true // past sample_count
}

// rewriteSizeAt adds delta to the size field of the box starting at
// boxStart, handling both the normal 32-bit and extended 64-bit forms.
func rewriteSizeAt(data []byte, boxStart int, delta int) error {
	size := binary.BigEndian.Uint32(data[boxStart : boxStart+4])
	if size == 1 {
		cur := binary.BigEndian.Uint64(data[boxStart+8 : boxStart+16])
		binary.BigEndian.PutUint64(data[boxStart+8:boxStart+16], cur+uint64(delta))
		return nil
	}
	if size == 0 {
		return fmt.Errorf("box at offset %d uses size-extends-to-EOF form, cannot rewrite in place", boxStart)
	}
	newSize := uint64(size) + uint64(delta)
	if newSize > 0xFFFFFFFF {
		return fmt.Errorf("box at offset %d grew past the 32-bit size limit; extended-size promotion is not supported by in-place splicing", boxStart)
	}
	binary.BigEndian.PutUint32(data[boxStart:boxStart+4], uint32(newSize))
	return nil
}
