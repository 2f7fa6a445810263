// Package timedtext builds the text-track init and media segments the core
// fMP4 path does not cover: WebVTT-in-MP4 (wvtt), TTML-in-MP4 (stpp), and
// bare TTML passthrough. mediacommon's fmp4/mp4 packages have no sample-entry
// support for either text codec, so this package assembles the moov/moof/mdat
// box graph directly on top of internal/isobmff/box, the same tagged-hierarchy
// primitive the CENC splicer uses, following spec.md §4.1's two-pass sizing
// discipline (ComputeSize bottom-up, then Marshal).
package timedtext

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jmylchreest/livepackager/internal/isobmff/box"
	"github.com/jmylchreest/livepackager/internal/model"
)

// movieTimescale is the fixed mvhd/tkhd timescale this package uses for the
// movie-level boxes; the track's own mdhd carries the caller's StreamInfo
// timescale.
const movieTimescale = 1000

// sampleEntryFourCC returns the stsd sample entry type for a text codec.
func sampleEntryFourCC(codec model.Codec) (string, model.Status) {
	switch codec {
	case model.CodecWebVTT:
		return "wvtt", model.OK
	case model.CodecTTML:
		return "stpp", model.OK
	default:
		return "", model.NewStatus(model.CodeUnimplemented, fmt.Sprintf("codec %s has no timed-text sample entry mapping", codec))
	}
}

// Builder accumulates one text track's samples and emits init/media
// segments, mirroring internal/isobmff.Builder's shape for a single track
// (timed-text tracks are packaged one per Package call, unlike the
// multi-track fMP4 builder).
type Builder struct {
	info    model.StreamInfo
	fourCC  string
	samples []model.MediaSample
}

// NewBuilder validates info and returns a Builder for its codec.
func NewBuilder(info model.StreamInfo) (*Builder, model.Status) {
	if info.Kind != model.KindText {
		return nil, model.NewStatus(model.CodeInvalidArgument, "timedtext.Builder requires a text StreamInfo")
	}
	if status := info.Validate(); !status.Ok() {
		return nil, status
	}
	fourCC, status := sampleEntryFourCC(info.Codec)
	if !status.Ok() {
		return nil, status
	}
	return &Builder{info: info, fourCC: fourCC}, model.OK
}

// AddSample appends one text cue/document sample to the pending fragment.
func (b *Builder) AddSample(sample model.MediaSample) model.Status {
	b.samples = append(b.samples, sample)
	return model.OK
}

// FinalizeInit marshals ftyp+moov to w.
func (b *Builder) FinalizeInit(w io.Writer) model.Status {
	// ftyp payload layout is major_brand(4) + minor_version(4) + compatible_brands(4*n).
	ftypPayload := append(fourCCBytes("iso6"), be32(0)...)
	ftypPayload = append(ftypPayload, fourCCBytes("iso6")...)
	ftypPayload = append(ftypPayload, fourCCBytes("mp41")...)
	ftypPayload = append(ftypPayload, fourCCBytes("cmfc")...)
	ftyp := box.New("ftyp", ftypPayload)

	moov := b.buildMoov()
	ftyp.ComputeSize()
	moov.ComputeSize()

	var buf bytes.Buffer
	if err := ftyp.Marshal(&buf); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "marshaling ftyp", err)
	}
	if err := moov.Marshal(&buf); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "marshaling moov", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "writing timed-text init segment", err)
	}
	return model.OK
}

// FinalizeSegment marshals styp+moof+mdat for the pending samples to w and
// clears them. decodeTime is the tfdt base_media_decode_time (ticks in the
// track's own timescale), taken from Config.TimedTextDecodeTime.
func (b *Builder) FinalizeSegment(w io.Writer, decodeTime int64, sequenceNumber uint32) model.Status {
	if len(b.samples) == 0 {
		return model.NewStatus(model.CodeChunkingError, "no samples pending for this segment")
	}

	styp := box.New("styp", append(fourCCBytes("iso6"), be32(0)...))

	trun, mdatPayload := b.buildTrun(len(b.samples))

	tfhd := box.NewFull("tfhd", 0, 0x020000, be32(uint32(b.info.TrackID))) // default-base-is-moof
	tfdt := box.NewFull("tfdt", 1, 0, be64(uint64(decodeTime)))
	traf := box.New("traf", nil, tfhd, tfdt, trun)
	mfhd := box.NewFull("mfhd", 0, 0, be32(sequenceNumber))
	moof := box.New("moof", nil, mfhd, traf)
	mdat := box.New("mdat", mdatPayload)

	moof.ComputeSize()
	// trun.data_offset is the byte offset from the start of moof to the
	// first byte of this track's data in mdat; with one track and mdat
	// immediately following moof, that is moof's total size plus mdat's
	// 8-byte header.
	patchDataOffset(trun, int32(moof.Size())+8)
	moof.ComputeSize()

	var buf bytes.Buffer
	for _, bx := range []*box.Box{styp, moof, mdat} {
		bx.ComputeSize()
		if err := bx.Marshal(&buf); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "marshaling timed-text media segment", err)
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "writing timed-text media segment", err)
	}

	b.samples = nil
	return model.OK
}

// buildTrun lays out one sample-duration/sample-size entry per pending
// sample and returns the concatenated mdat payload (each sample's text
// payload back to back, matching the stsz-less fragment convention).
func (b *Builder) buildTrun(n int) (*box.Box, []byte) {
	const flags = 0x000001 | 0x000100 | 0x000200 // data-offset, sample-duration, sample-size present
	payload := be32(uint32(n))
	payload = append(payload, be32(0)...) // data_offset placeholder, patched below

	var mdat []byte
	for _, s := range b.samples {
		payload = append(payload, be32(s.Duration)...)
		payload = append(payload, be32(uint32(len(s.Payload)))...)
		mdat = append(mdat, s.Payload...)
	}
	return box.NewFull("trun", 0, flags, payload), mdat
}

// patchDataOffset overwrites trun's data_offset field (the first signed
// 32-bit value after the FullBox header and sample_count).
func patchDataOffset(trun *box.Box, offset int32) {
	if len(trun.Payload) < 8 {
		return
	}
	be := be32(uint32(offset))
	copy(trun.Payload[4:8], be)
}

func (b *Builder) buildMoov() *box.Box {
	mvhd := box.NewFull("mvhd", 0, 0, mvhdPayload())
	trak := b.buildTrak()
	trex := box.NewFull("trex", 0, 0, trexPayload(b.info.TrackID))
	mvex := box.New("mvex", nil, trex)
	return box.New("moov", nil, mvhd, trak, mvex)
}

func (b *Builder) buildTrak() *box.Box {
	tkhd := box.NewFull("tkhd", 0, 0x000007, tkhdPayload(b.info.TrackID))
	mdhd := box.NewFull("mdhd", 0, 0, mdhdPayload(b.info.Timescale, b.info.Language))
	hdlr := box.New("hdlr", hdlrPayload("subt"))
	sthd := box.NewFull("sthd", 0, 0, nil)
	url := box.NewFull("url ", 0, 0x000001, nil) // self-contained, no location string
	dref := box.NewFull("dref", 0, 0, be32(1), url)
	dinf := box.New("dinf", nil, dref)
	stsd := box.NewFull("stsd", 0, 0, be32(1), b.buildSampleEntry())
	stts := box.NewFull("stts", 0, 0, be32(0))
	stsc := box.NewFull("stsc", 0, 0, be32(0))
	stsz := box.NewFull("stsz", 0, 0, append(be32(0), be32(0)...))
	stco := box.NewFull("stco", 0, 0, be32(0))
	stbl := box.New("stbl", nil, stsd, stts, stsc, stsz, stco)
	minf := box.New("minf", nil, sthd, dinf, stbl)
	mdia := box.New("mdia", nil, mdhd, hdlr, minf)
	return box.New("trak", nil, tkhd, mdia)
}

func (b *Builder) buildSampleEntry() *box.Box {
	common := make([]byte, 8) // reserved(6) + data_reference_index(2)
	common[7] = 1
	switch b.fourCC {
	case "wvtt":
		vttC := box.New("vttC", nil) // empty WebVTT configuration: no header cue settings
		return box.New("wvtt", common, vttC)
	default: // "stpp"
		payload := append(common, []byte("http://www.w3.org/ns/ttml\x00")...)
		return box.New("stpp", payload)
	}
}

func fourCCBytes(s string) []byte {
	b := make([]byte, 4)
	copy(b, s)
	return b
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func be64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func mvhdPayload() []byte {
	payload := make([]byte, 0, 96)
	payload = append(payload, be32(0)...)              // creation_time
	payload = append(payload, be32(0)...)               // modification_time
	payload = append(payload, be32(movieTimescale)...) // timescale
	payload = append(payload, be32(0)...)               // duration (unknown)
	payload = append(payload, be32(0x00010000)...)      // rate 1.0
	payload = append(payload, 0, 0)                     // volume 1.0 (high byte only set below)
	payload[len(payload)-2] = 0x01
	payload = append(payload, make([]byte, 2+8)...) // reserved(2) + reserved(2*4)
	payload = append(payload, identityMatrix()...)
	payload = append(payload, make([]byte, 24)...) // pre_defined
	payload = append(payload, be32(2)...)           // next_track_ID
	return payload
}

func identityMatrix() []byte {
	m := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	out := make([]byte, 0, 36)
	for _, v := range m {
		out = append(out, be32(v)...)
	}
	return out
}

func tkhdPayload(trackID int) []byte {
	payload := make([]byte, 0, 80)
	payload = append(payload, be32(0)...)            // creation_time
	payload = append(payload, be32(0)...)             // modification_time
	payload = append(payload, be32(uint32(trackID))...)
	payload = append(payload, be32(0)...) // reserved
	payload = append(payload, be32(0)...) // duration
	payload = append(payload, make([]byte, 8)...) // reserved(2*4)
	payload = append(payload, 0, 0) // layer
	payload = append(payload, 0, 0) // alternate_group
	payload = append(payload, 0, 0) // volume (text track: 0)
	payload = append(payload, 0, 0) // reserved
	payload = append(payload, identityMatrix()...)
	payload = append(payload, be32(0)...) // width (fixed-point, text track: 0)
	payload = append(payload, be32(0)...) // height
	return payload
}

func mdhdPayload(timescale uint32, language string) []byte {
	payload := make([]byte, 0, 20)
	payload = append(payload, be32(0)...) // creation_time
	payload = append(payload, be32(0)...) // modification_time
	payload = append(payload, be32(timescale)...)
	payload = append(payload, be32(0)...) // duration (unknown)
	payload = append(payload, encodePackedLanguage(language)...)
	payload = append(payload, 0, 0) // pre_defined
	return payload
}

// encodePackedLanguage packs a 3-letter ISO 639-2 code into mdhd's 16-bit
// packed language field (5 bits per character, offset by 0x60); an empty or
// non-3-letter tag falls back to "und".
func encodePackedLanguage(lang string) []byte {
	code := "und"
	if len(lang) == 3 {
		code = lang
	}
	var v uint16
	for _, c := range code {
		v = (v << 5) | uint16(byte(c)-0x60)
	}
	return []byte{byte(v >> 8), byte(v)}
}

func hdlrPayload(handlerType string) []byte {
	payload := make([]byte, 0, 24)
	payload = append(payload, be32(0)...) // pre_defined
	payload = append(payload, fourCCBytes(handlerType)...)
	payload = append(payload, make([]byte, 12)...) // reserved
	payload = append(payload, []byte("livepackager\x00")...)
	return payload
}

func trexPayload(trackID int) []byte {
	payload := make([]byte, 0, 20)
	payload = append(payload, be32(uint32(trackID))...)
	payload = append(payload, be32(1)...) // default_sample_description_index
	payload = append(payload, be32(0)...) // default_sample_duration
	payload = append(payload, be32(0)...) // default_sample_size
	payload = append(payload, be32(0)...) // default_sample_flags
	return payload
}
