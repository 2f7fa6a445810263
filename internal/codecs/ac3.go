package codecs

import "github.com/jmylchreest/livepackager/internal/model"

// ac3FrameSizeTable is the A/52 §5.4.1 (frmsizecod, fscod) -> frame size in
// 16-bit words table, indexed [fscod][frmsizecod>>1].
var ac3FrameSizeTable = [3][19]int{
	{64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 448, 512, 640, 768, 896, 1024, 1152, 1280},     // 48 kHz
	{69, 87, 104, 121, 139, 174, 208, 243, 278, 348, 417, 487, 557, 696, 835, 975, 1114, 1253, 1393},    // 44.1 kHz
	{96, 120, 144, 168, 192, 240, 288, 336, 384, 480, 576, 672, 768, 960, 1152, 1344, 1536, 1728, 1920}, // 32 kHz
}

var ac3SampleRates = [3]int{48000, 44100, 32000}

// AC3SyncInfo is the parsed content of an AC-3 syncframe header relevant to
// the AC3SpecificBox and to reassembling frame boundaries.
type AC3SyncInfo struct {
	SampleRate    int
	FrameSizeWords int
	BSID          byte
	BSMod         byte
	ACMod         byte
	LFEOn         bool
	FrmSizeCod    byte
	FSCod         byte
}

// ParseAC3Sync locates the AC-3 syncword (0x0B77) at offset 0 and extracts
// the fields needed to compute frame size and synthesize an AC3SpecificBox.
func ParseAC3Sync(data []byte) (AC3SyncInfo, model.Status) {
	if len(data) < 8 || data[0] != 0x0B || data[1] != 0x77 {
		return AC3SyncInfo{}, model.NewStatus(model.CodeParserFailure, "AC-3 syncword 0x0B77 not found")
	}

	fscod := (data[4] >> 6) & 0x03
	frmsizecod := data[4] & 0x3F
	if fscod == 3 {
		return AC3SyncInfo{}, model.NewStatus(model.CodeParserFailure, "reserved AC-3 fscod")
	}
	if int(frmsizecod)>>1 >= len(ac3FrameSizeTable[fscod]) {
		return AC3SyncInfo{}, model.NewStatus(model.CodeParserFailure, "invalid AC-3 frmsizecod")
	}

	bsid := (data[5] >> 3) & 0x1F
	bsmod := data[5] & 0x07
	acmod := (data[6] >> 5) & 0x07

	lfeBitOffset := acmodLFEBitOffset(acmod)
	lfeOn := false
	if lfeBitOffset >= 0 {
		lfeOn = (data[6]>>uint(lfeBitOffset))&0x01 == 1
	}

	frameWords := ac3FrameSizeTable[fscod][frmsizecod>>1]
	if frmsizecod&1 == 1 && fscod == 1 {
		frameWords++ // 44.1kHz odd frmsizecod adds one extra word
	}

	return AC3SyncInfo{
		SampleRate:     ac3SampleRates[fscod],
		FrameSizeWords: frameWords,
		BSID:           bsid,
		BSMod:          bsmod,
		ACMod:          acmod,
		LFEOn:          lfeOn,
		FrmSizeCod:     frmsizecod,
		FSCod:          fscod,
	}, model.OK
}

// FrameSizeBytes is the syncframe size in bytes (2-byte words).
func (s AC3SyncInfo) FrameSizeBytes() int {
	return s.FrameSizeWords * 2
}

// acmodLFEBitOffset returns which bit of byte 6 carries the LFE-on flag for
// a given acmod. The flag follows the 3-bit acmod and whichever 2-bit
// cmixlev/surmixlev/dsurmod fields that acmod makes present.
func acmodLFEBitOffset(acmod byte) int {
	offset := 4
	if acmod&0x01 != 0 && acmod != 1 { // cmixlev
		offset -= 2
	}
	if acmod&0x04 != 0 { // surmixlev
		offset -= 2
	}
	if acmod == 2 { // dsurmod
		offset -= 2
	}
	return offset
}

// ChannelCount returns the discrete channel count acmod implies, plus one
// when the LFE channel is on.
func (s AC3SyncInfo) ChannelCount() int {
	counts := [8]int{2, 1, 2, 3, 3, 4, 4, 5}
	n := counts[s.ACMod]
	if s.LFEOn {
		n++
	}
	return n
}

// AC3SpecificBox synthesizes the ac-3 SpecificBox payload (ETSI TS 102 366
// Annex F): 2-bit fscod, 5-bit bsid, 3-bit bsmod, 3-bit acmod, 1-bit lfeon,
// 5-bit bit_rate_code (= frmsizecod >> 1), 5 reserved bits.
func (s AC3SyncInfo) AC3SpecificBox() []byte {
	var lfe byte
	if s.LFEOn {
		lfe = 1
	}
	b0 := (s.FSCod << 6) | (s.BSID << 1) | (s.BSMod >> 2)
	b1 := (s.BSMod << 6) | (s.ACMod << 3) | (lfe << 2) | ((s.FrmSizeCod >> 1) >> 3)
	b2 := (s.FrmSizeCod >> 1) << 5
	return []byte{b0, b1, b2}
}
