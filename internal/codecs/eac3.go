package codecs

import "github.com/jmylchreest/livepackager/internal/model"

// EAC3SyncInfo is the parsed content of an Enhanced AC-3 syncframe header.
type EAC3SyncInfo struct {
	StreamType   byte
	SubstreamID  byte
	FrameSize    int // bytes
	SampleRate   int
	ACMod        byte
	LFEOn        bool
	NumBlocks    int
}

var eac3SampleRates = [4]int{48000, 44100, 32000, 0}

// ParseEAC3Sync locates the syncword 0x0B77 and decodes the bsi fields
// Enhanced AC-3 adds on top of AC-3: stream_type (2 bits) replaces the plain
// bsid field's high bits, and frame size is computed directly from frmsiz
// rather than a lookup table.
func ParseEAC3Sync(data []byte) (EAC3SyncInfo, model.Status) {
	if len(data) < 8 || data[0] != 0x0B || data[1] != 0x77 {
		return EAC3SyncInfo{}, model.NewStatus(model.CodeParserFailure, "AC-3 syncword 0x0B77 not found")
	}

	streamType := (data[2] >> 6) & 0x03
	substreamID := (data[2] >> 3) & 0x07
	frmsiz := (uint16(data[2]&0x07) << 8) | uint16(data[3])
	frameSize := (int(frmsiz) + 1) * 2

	fscod := (data[4] >> 6) & 0x03
	var sampleRate int
	var numBlocks int
	if fscod == 3 {
		fscod2 := (data[4] >> 4) & 0x03
		if fscod2 == 3 {
			return EAC3SyncInfo{}, model.NewStatus(model.CodeParserFailure, "reserved EAC3 fscod2")
		}
		sampleRate = eac3SampleRates[fscod2] / 2
		numBlocks = 6
	} else {
		sampleRate = eac3SampleRates[fscod]
		numBlocksCod := (data[4] >> 4) & 0x03
		blockTable := [4]int{1, 2, 3, 6}
		numBlocks = blockTable[numBlocksCod]
	}

	acmod := (data[4] >> 1) & 0x07
	lfeOn := data[4]&0x01 == 1

	return EAC3SyncInfo{
		StreamType:  streamType,
		SubstreamID: substreamID,
		FrameSize:   frameSize,
		SampleRate:  sampleRate,
		ACMod:       acmod,
		LFEOn:       lfeOn,
		NumBlocks:   numBlocks,
	}, model.OK
}

// ChannelCount returns the discrete channel count acmod implies, plus one
// when the LFE channel is on. Channels carried in dependent substreams are
// not counted: only this one syncframe is parsed.
func (s EAC3SyncInfo) ChannelCount() int {
	counts := [8]int{2, 1, 2, 3, 3, 4, 4, 5}
	n := counts[s.ACMod]
	if s.LFEOn {
		n++
	}
	return n
}
