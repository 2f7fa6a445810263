// Package isobmff builds ISO-BMFF initialization and media segments from
// already-demuxed samples, matching the box universe and two-pass sizing
// discipline described for the live-packaging fMP4 writer. Unencrypted
// tracks are produced entirely by mediacommon's fmp4/mp4 packages; encrypted
// tracks splice senc/saiz/saio/sinf/schm/schi/tenc boxes (internal/isobmff/box)
// into the bytes mediacommon already marshaled, since mediacommon has no
// CENC/Sample-AES support of its own.
package isobmff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/jmylchreest/livepackager/internal/crypto"
	"github.com/jmylchreest/livepackager/internal/isobmff/box"
	"github.com/jmylchreest/livepackager/internal/model"
)

// trackState holds one track's accumulated fragment state between
// FinalizeSegment calls.
type trackState struct {
	info     model.StreamInfo
	codec    mp4.Codec
	baseTime uint64

	samples []*fmp4.Sample
	auxInfo []box.SampleAuxInfo

	engine    *crypto.Engine
	encConfig model.EncryptionConfig
	encrypted bool
}

// Builder accumulates samples per track and emits initialization and media
// segments on demand. Every method holds the builder's mutex, so calls
// made from several goroutines are serialized.
type Builder struct {
	mu sync.Mutex

	order  []int
	tracks map[int]*trackState

	sequenceNumber uint32
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{tracks: make(map[int]*trackState), sequenceNumber: 1}
}

// SetSequenceNumber overrides the moof sequence_number the next
// FinalizeSegment call will use, for callers deriving segment numbering from
// an external counter (spec.md §6's segment_number configuration field)
// rather than letting the builder count from 1.
func (b *Builder) SetSequenceNumber(n uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequenceNumber = n
}

// Initialize registers the tracks this builder will produce segments for.
// encryption maps a subset of track IDs to the EncryptionConfig their
// samples should be protected with; absent entries are unencrypted.
func (b *Builder) Initialize(streams []model.StreamInfo, encryption map[int]model.EncryptionConfig) model.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range streams {
		if status := s.Validate(); !status.Ok() {
			return status
		}
		codec, status := mp4CodecFor(s)
		if !status.Ok() {
			return status
		}

		ts := &trackState{info: s, codec: codec}
		if cfg, ok := encryption[s.TrackID]; ok {
			engine, status := crypto.NewEngine(cfg.Scheme, cfg.Key[:], cfg.IV, cfg.CryptByteBlock, cfg.SkipByteBlock)
			if !status.Ok() {
				return status
			}
			ts.engine = engine
			ts.encConfig = cfg
			ts.encrypted = true
		}

		b.tracks[s.TrackID] = ts
		b.order = append(b.order, s.TrackID)
	}
	return model.OK
}

// AddSample appends one sample to trackID's pending fragment, encrypting it
// first if the track was initialized with an EncryptionConfig.
func (b *Builder) AddSample(trackID int, sample model.MediaSample) model.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts, ok := b.tracks[trackID]
	if !ok {
		return model.NewStatus(model.CodeNotFound, fmt.Sprintf("track %d was not registered with Initialize", trackID))
	}

	payload := sample.Payload
	if ts.encrypted {
		iv := ts.engine.CurrentIV()
		encrypted, status := ts.engine.Transform(payload, ts.encConfig.Subsamples, true)
		if !status.Ok() {
			return status
		}
		payload = encrypted
		ts.auxInfo = append(ts.auxInfo, box.SampleAuxInfo{IV: iv, Subsamples: ts.encConfig.Subsamples})
	}

	fsample := &fmp4.Sample{
		Duration:        sample.Duration,
		PTSOffset:       sample.PTSOffset(),
		IsNonSyncSample: !sample.IsKeyFrame,
	}

	switch ts.info.Codec {
	case model.CodecH264:
		if err := fsample.FillH264(fsample.PTSOffset, splitLengthPrefixed(payload)); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "filling H.264 sample", err)
		}
	case model.CodecH265:
		if err := fsample.FillH265(fsample.PTSOffset, splitLengthPrefixed(payload)); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "filling H.265 sample", err)
		}
	case model.CodecAV1:
		if err := fsample.FillAV1(splitLengthPrefixed(payload)); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "filling AV1 sample", err)
		}
	default:
		fsample.Payload = payload
	}

	ts.samples = append(ts.samples, fsample)
	return model.OK
}

// FinalizeInit marshals the initialization segment (ftyp+moov) to w,
// splicing sinf/schm/schi/tenc into each encrypted track's sample entry.
func (b *Builder) FinalizeInit(w io.Writer) model.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	init := &fmp4.Init{}
	for _, id := range b.order {
		ts := b.tracks[id]
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        id,
			TimeScale: trackTimescale(ts.info),
			Codec:     ts.codec,
		})
	}

	var buf bytes.Buffer
	if err := init.Marshal(&seekableBuffer{Buffer: &buf}); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "marshaling init segment", err)
	}
	data := buf.Bytes()

	for _, id := range b.order {
		ts := b.tracks[id]
		if !ts.encrypted {
			continue
		}
		originalFourCC := sampleEntryFourCC(ts.info.Codec)
		sinf := box.Sinf(originalFourCC, ts.encConfig)
		spliced, err := box.SpliceSinfIntoSampleEntry(data, uint32(id), originalFourCC, sinf)
		if err != nil {
			return model.Wrap(model.CodeMuxerFailure, fmt.Sprintf("splicing sinf for track %d", id), err)
		}
		data = spliced

		psshBoxes := box.PsshBoxesForSystems(ts.encConfig.ProtectionSystems, ts.encConfig.KeyID)
		spliced, err = box.SplicePsshIntoMoov(data, psshBoxes)
		if err != nil {
			return model.Wrap(model.CodeMuxerFailure, fmt.Sprintf("splicing pssh for track %d", id), err)
		}
		data = spliced
	}

	if _, err := w.Write(data); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "writing init segment", err)
	}
	return model.OK
}

// FinalizeSegment marshals one media segment (styp+moof+mdat) from every
// track's pending samples to w, splicing senc/saiz/saio into each
// encrypted track's traf, then clears the pending-sample buffers.
func (b *Builder) FinalizeSegment(w io.Writer) model.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	part := &fmp4.Part{SequenceNumber: b.sequenceNumber}
	for _, id := range b.order {
		ts := b.tracks[id]
		if len(ts.samples) == 0 {
			continue
		}
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       id,
			BaseTime: ts.baseTime,
			Samples:  ts.samples,
		})
	}
	if len(part.Tracks) == 0 {
		return model.NewStatus(model.CodeChunkingError, "no samples pending for this segment")
	}

	var buf bytes.Buffer
	if err := part.Marshal(&seekableBuffer{Buffer: &buf}); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "marshaling media segment", err)
	}
	data := buf.Bytes()

	for _, id := range b.order {
		ts := b.tracks[id]
		if !ts.encrypted || len(ts.auxInfo) == 0 {
			continue
		}
		spliced, err := box.SpliceTrafAuxInfo(data, uint32(id), ts.auxInfo)
		if err != nil {
			return model.Wrap(model.CodeMuxerFailure, fmt.Sprintf("splicing aux info for track %d", id), err)
		}
		data = spliced
	}

	for _, id := range b.order {
		ts := b.tracks[id]
		for _, s := range ts.samples {
			ts.baseTime += uint64(s.Duration)
		}
		ts.samples = nil
		ts.auxInfo = nil
	}
	b.sequenceNumber++

	// Each media segment leads with a styp box: major brand iso6, minor
	// version 0, no compatible brands.
	styp := []byte{0, 0, 0, 16, 's', 't', 'y', 'p', 'i', 's', 'o', '6', 0, 0, 0, 0}
	if _, err := w.Write(append(styp, data...)); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "writing media segment", err)
	}
	return model.OK
}

// splitLengthPrefixed reverses the 4-byte-length-prefixed framing
// internal/codecs produces, returning the individual NAL units
// fmp4.Sample.FillH264/FillH265 expect.
func splitLengthPrefixed(data []byte) [][]byte {
	var out [][]byte
	for i := 0; i+4 <= len(data); {
		n := int(binary.BigEndian.Uint32(data[i : i+4]))
		i += 4
		if i+n > len(data) {
			break
		}
		out = append(out, data[i:i+n])
		i += n
	}
	return out
}

func trackTimescale(s model.StreamInfo) uint32 {
	if s.Kind == model.KindAudio && s.Audio.SampleRate > 0 {
		return uint32(s.Audio.SampleRate)
	}
	return s.Timescale
}

func sampleEntryFourCC(codec model.Codec) string {
	switch codec {
	case model.CodecH264:
		return "avc1"
	case model.CodecH265:
		return "hev1"
	case model.CodecAAC:
		return "mp4a"
	case model.CodecAC3:
		return "ac-3"
	case model.CodecEAC3:
		return "ec-3"
	case model.CodecOpus:
		return "Opus"
	case model.CodecVP9:
		return "vp09"
	case model.CodecVP8:
		return "vp08"
	case model.CodecAV1:
		return "av01"
	default:
		return ""
	}
}

func mp4CodecFor(s model.StreamInfo) (mp4.Codec, model.Status) {
	switch s.Codec {
	case model.CodecH264:
		return &mp4.CodecH264{SPS: extractParam(s.CodecConfig, 0), PPS: extractParam(s.CodecConfig, 1)}, model.OK
	case model.CodecH265:
		return &mp4.CodecH265{
			VPS: extractParam(s.CodecConfig, 0),
			SPS: extractParam(s.CodecConfig, 1),
			PPS: extractParam(s.CodecConfig, 2),
		}, model.OK
	case model.CodecAAC:
		var cfg mpeg4audio.AudioSpecificConfig
		if err := cfg.Unmarshal(s.CodecConfig); err != nil {
			return nil, model.Wrap(model.CodeParserFailure, "parsing AudioSpecificConfig", err)
		}
		return &mp4.CodecMPEG4Audio{Config: cfg}, model.OK
	case model.CodecAC3:
		return &mp4.CodecAC3{SampleRate: s.Audio.SampleRate, ChannelCount: s.Audio.ChannelCount}, model.OK
	case model.CodecEAC3:
		return &mp4.CodecEAC3{SampleRate: s.Audio.SampleRate, ChannelCount: s.Audio.ChannelCount}, model.OK
	case model.CodecOpus:
		return &mp4.CodecOpus{ChannelCount: s.Audio.ChannelCount}, model.OK
	case model.CodecVP9:
		return &mp4.CodecVP9{Width: s.Video.Width, Height: s.Video.Height}, model.OK
	case model.CodecAV1:
		return &mp4.CodecAV1{SequenceHeader: s.CodecConfig}, model.OK
	default:
		return nil, model.NewStatus(model.CodeUnimplemented, fmt.Sprintf("codec %s has no ISO-BMFF sample entry mapping", s.Codec))
	}
}

// extractParam reads the idx'th length-prefixed (4-byte length, matching
// splitLengthPrefixed) parameter set out of CodecConfig, the packing this
// builder expects StreamInfo.CodecConfig to use for H.264/H.265 VPS/SPS/PPS.
func extractParam(data []byte, idx int) []byte {
	i := 0
	for n := 0; i+4 <= len(data); n++ {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		i += 4
		if i+length > len(data) {
			return nil
		}
		if n == idx {
			return data[i : i+length]
		}
		i += length
	}
	return nil
}

// seekableBuffer adapts a bytes.Buffer to the io.WriteSeeker mediacommon's
// Init/Part.Marshal requires for patching back-referenced fields like
// trun.data_offset.
type seekableBuffer struct {
	*bytes.Buffer
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if int(s.pos) > s.Buffer.Len() {
		s.Buffer.Write(make([]byte, int(s.pos)-s.Buffer.Len()))
	}
	if int(s.pos) == s.Buffer.Len() {
		n, err := s.Buffer.Write(p)
		s.pos += int64(n)
		return n, err
	}
	b := s.Buffer.Bytes()
	n := copy(b[s.pos:], p)
	if n < len(p) {
		m, err := s.Buffer.Write(p[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	s.pos += int64(n)
	return n, nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.Buffer.Len()) + offset
	default:
		return 0, fmt.Errorf("invalid whence")
	}
	if newPos < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	s.pos = newPos
	return newPos, nil
}
