package box

import (
	"encoding/binary"
	"fmt"
)

// SpliceSinfIntoSampleEntry rewrites the sample entry mediacommon produced
// for trackID's stsd (originally fourCC, e.g. "avc1"/"mp4a") into its
// encrypted form (encryptedFourCC, e.g. "encv"/"enca") and appends a sinf
// box describing the original format and protection scheme, per the CENC
// Common Encryption scheme (ISO/IEC 23001-7 §4). Box sizes are patched up
// the full moov/trak/mdia/minf/stbl/stsd ancestor chain.
func SpliceSinfIntoSampleEntry(initSegment []byte, trackID uint32, originalFourCC string, sinf *Box) ([]byte, error) {
	chain, err := findStsdChain(initSegment, trackID)
	if err != nil {
		return nil, err
	}

	stsdContentStart, stsdContentEnd := contentRange(initSegment, chain.stsd)
	// stsd's FullBox content begins with a 4-byte entry_count before its
	// child sample entries.
	entries, err := scanChildren(initSegment, stsdContentStart+4, stsdContentEnd)
	if err != nil {
		return nil, err
	}
	var want [4]byte
	copy(want[:], originalFourCC)
	var sampleEntry *entry
	for i := range entries {
		if entries[i].Type == want {
			sampleEntry = &entries[i]
			break
		}
	}
	if sampleEntry == nil {
		return nil, fmt.Errorf("no %q sample entry found in stsd for track %d", originalFourCC, trackID)
	}

	sinfBytes, err := MarshalToBytes(sinf)
	if err != nil {
		return nil, err
	}
	insertedLen := len(sinfBytes)

	out := make([]byte, 0, len(initSegment)+insertedLen)
	out = append(out, initSegment[:sampleEntry.End]...)
	out = append(out, sinfBytes...)
	out = append(out, initSegment[sampleEntry.End:]...)

	encryptedFourCC := encryptedSampleEntryName(originalFourCC)
	copy(out[sampleEntry.Start+4:sampleEntry.Start+8], encryptedFourCC[:])

	for _, ancestorStart := range []int{
		sampleEntry.Start, chain.stsd.Start, chain.stbl.Start, chain.minf.Start,
		chain.mdia.Start, chain.trak.Start, chain.moov.Start,
	} {
		if err := rewriteSizeAt(out, ancestorStart, insertedLen); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// encryptedSampleEntryName maps a cleartext sample entry type to its
// encrypted-form type per ISO/IEC 23001-7: video entries become "encv",
// audio entries become "enca"; any other type is left as "encs" (generic).
func encryptedSampleEntryName(originalFourCC string) [4]byte {
	switch originalFourCC {
	case "avc1", "hev1", "hvc1", "vp08", "vp09", "av01":
		return fourCC("encv")
	case "mp4a", "ac-3", "ec-3", "Opus":
		return fourCC("enca")
	default:
		return fourCC("encs")
	}
}

// SplicePsshIntoMoov appends pssh boxes as direct children of moov (siblings
// of trak/mvex), the layout ISO/IEC 23001-7 §8.1 requires for DASH clients to
// find protection-system init data without descending into a track. Only
// moov's own size field needs patching: pssh is not nested under a box that
// itself records a size relative to moov's contents, unlike the trak-scoped
// sinf/senc/saiz/saio splices above.
func SplicePsshIntoMoov(initSegment []byte, psshBoxes []*Box) ([]byte, error) {
	if len(psshBoxes) == 0 {
		return initSegment, nil
	}

	moov, ok, err := find(initSegment, 0, len(initSegment), "moov")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no moov box found")
	}

	var inserted []byte
	for _, p := range psshBoxes {
		b, err := MarshalToBytes(p)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, b...)
	}

	out := make([]byte, 0, len(initSegment)+len(inserted))
	out = append(out, initSegment[:moov.End]...)
	out = append(out, inserted...)
	out = append(out, initSegment[moov.End:]...)

	if err := rewriteSizeAt(out, moov.Start, len(inserted)); err != nil {
		return nil, err
	}
	return out, nil
}

type stsdChain struct {
	moov, trak, mdia, minf, stbl, stsd entry
}

// findStsdChain descends moov -> trak (matching tkhd.track_ID) -> mdia ->
// minf -> stbl -> stsd, returning every box in the chain.
func findStsdChain(data []byte, trackID uint32) (stsdChain, error) {
	moov, ok, err := find(data, 0, len(data), "moov")
	if err != nil {
		return stsdChain{}, err
	}
	if !ok {
		return stsdChain{}, fmt.Errorf("no moov box found")
	}
	moovStart, moovEnd := contentRange(data, moov)

	traks, err := scanChildren(data, moovStart, moovEnd)
	if err != nil {
		return stsdChain{}, err
	}

	for _, trak := range traks {
		if trak.Type != fourCC("trak") {
			continue
		}
		trakStart, trakEnd := contentRange(data, trak)
		children, err := scanChildren(data, trakStart, trakEnd)
		if err != nil {
			return stsdChain{}, err
		}
		var tkhd *entry
		for i := range children {
			if children[i].Type == fourCC("tkhd") {
				tkhd = &children[i]
			}
		}
		if tkhd == nil || trackIDFromTkhd(data, *tkhd) != trackID {
			continue
		}

		mdia, ok, err := find(data, trakStart, trakEnd, "mdia")
		if err != nil || !ok {
			return stsdChain{}, fmt.Errorf("no mdia box in matching trak: %w", err)
		}
		mdiaStart, mdiaEnd := contentRange(data, mdia)

		minf, ok, err := find(data, mdiaStart, mdiaEnd, "minf")
		if err != nil || !ok {
			return stsdChain{}, fmt.Errorf("no minf box in matching mdia: %w", err)
		}
		minfStart, minfEnd := contentRange(data, minf)

		stbl, ok, err := find(data, minfStart, minfEnd, "stbl")
		if err != nil || !ok {
			return stsdChain{}, fmt.Errorf("no stbl box in matching minf: %w", err)
		}
		stblStart, stblEnd := contentRange(data, stbl)

		stsd, ok, err := find(data, stblStart, stblEnd, "stsd")
		if err != nil || !ok {
			return stsdChain{}, fmt.Errorf("no stsd box in matching stbl: %w", err)
		}

		return stsdChain{moov: moov, trak: trak, mdia: mdia, minf: minf, stbl: stbl, stsd: stsd}, nil
	}

	return stsdChain{}, fmt.Errorf("no trak with track_ID %d found", trackID)
}

// trackIDFromTkhd reads tkhd's track_ID field. Version 0 places it after
// creation_time/modification_time (4 bytes each); version 1 after their
// 8-byte forms.
func trackIDFromTkhd(data []byte, tkhd entry) uint32 {
	start, _ := contentRange(data, tkhd)
	version := data[start]
	if version == 1 {
		return binary.BigEndian.Uint32(data[start+4+8+8 : start+4+8+8+4])
	}
	return binary.BigEndian.Uint32(data[start+4+4+4 : start+4+4+4+4])
}
