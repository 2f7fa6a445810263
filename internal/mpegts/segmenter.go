// Package mpegts builds MPEG-2 Transport Stream segments from demuxed
// samples, matching the PAT/PMT/PES/PCR/continuity-counter discipline
// described for the live-packaging TS writer. mediacommon's mpegts.Writer
// owns every byte of the packetization; this package adds the timestamp
// offset and optional Sample-AES envelope mediacommon has no hook for.
package mpegts

import (
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/jmylchreest/livepackager/internal/crypto"
	"github.com/jmylchreest/livepackager/internal/model"
)

const (
	videoPIDBase = 0x40
	audioPIDBase = 0x41

	// sampleAESHeaderLen is the clear-header length the MPEG-2 Stream
	// Encryption Format for HLS prescribes for Sample-AES PES payloads.
	sampleAESHeaderLen = 16
	// ac3ClearPrefixLen is the AC-3/E-AC-3 syncframe prefix left unencrypted
	// instead of the generic 16-byte header.
	ac3ClearPrefixLen = 10

	ticksPerMillisecond = 90 // mediacommon's mpegts.Writer always runs a 90kHz clock.
)

// trackState holds one track's mediacommon Track plus the encryption engine
// protecting its samples, if any.
type trackState struct {
	info  model.StreamInfo
	track *mpegts.Track

	engine    *crypto.Engine
	encrypted bool

	// videoParams tracks the most recently observed parameter sets so they
	// can be re-prepended to every keyframe, the way HLS-TS clients expect.
	videoParams *videoParamCache
}

// Segmenter accumulates elementary-stream samples and writes them out as a
// Transport Stream through mediacommon's mpegts.Writer. One Segmenter
// corresponds to one TS segment's worth of output; the caller constructs a
// fresh Segmenter per segment boundary. Each Segmenter starts its
// continuity counters afresh: mediacommon's Writer does not expose them, so
// no counter state is carried from one segment to the next.
type Segmenter struct {
	mu sync.Mutex

	w      *mpegts.Writer
	order  []int
	tracks map[int]*trackState

	offsetTicks int64
}

// Config parameterizes a Segmenter.
type Config struct {
	// M2TSOffsetMs is added to every PTS/DTS before emission. Must be
	// non-negative.
	M2TSOffsetMs int64
}

// NewSegmenter constructs a Segmenter writing to w for the given tracks.
// encryption maps a subset of track IDs to the EncryptionConfig their
// samples should be protected with via the Sample-AES envelope.
func NewSegmenter(w io.Writer, streams []model.StreamInfo, encryption map[int]model.EncryptionConfig, cfg Config) (*Segmenter, model.Status) {
	if cfg.M2TSOffsetMs < 0 {
		return nil, model.NewStatus(model.CodeMuxerFailure, "m2ts_offset_ms must be non-negative")
	}

	s := &Segmenter{
		tracks:      make(map[int]*trackState),
		offsetTicks: cfg.M2TSOffsetMs * ticksPerMillisecond,
	}

	nextVideoPID := uint16(videoPIDBase)
	nextAudioPID := uint16(audioPIDBase)

	var mtracks []*mpegts.Track
	for _, info := range streams {
		if status := info.Validate(); !status.Ok() {
			return nil, status
		}

		codec, status := tsCodecFor(info)
		if !status.Ok() {
			return nil, status
		}

		var pid uint16
		switch info.Kind {
		case model.KindVideo:
			pid = nextVideoPID
			nextVideoPID += 2
		default:
			pid = nextAudioPID
			nextAudioPID += 2
		}

		track := &mpegts.Track{PID: pid, Codec: codec}
		mtracks = append(mtracks, track)

		ts := &trackState{info: info, track: track}
		if info.Kind == model.KindVideo {
			ts.videoParams = newVideoParamCache()
			ts.videoParams.setFromCodecConfig(info.Codec == model.CodecH265, info.CodecConfig)
		}
		if encCfg, ok := encryption[info.TrackID]; ok {
			engine, status := crypto.NewEngine(model.ProtectionCBCS, encCfg.Key[:], encCfg.IV, 0, 0)
			if !status.Ok() {
				return nil, status
			}
			ts.engine = engine
			ts.encrypted = true
		}

		s.tracks[info.TrackID] = ts
		s.order = append(s.order, info.TrackID)
	}

	s.w = &mpegts.Writer{W: w, Tracks: mtracks}
	if err := s.w.Initialize(); err != nil {
		return nil, model.Wrap(model.CodeMuxerFailure, "initializing mpegts writer", err)
	}
	return s, model.OK
}

// WriteSample writes one access unit for trackID, applying the configured
// timestamp offset and, if the track is encrypted, the Sample-AES envelope.
func (s *Segmenter) WriteSample(trackID int, sample model.MediaSample) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tracks[trackID]
	if !ok {
		return model.NewStatus(model.CodeNotFound, fmt.Sprintf("track %d was not registered with NewSegmenter", trackID))
	}

	pts := sample.PTS + s.offsetTicks
	dts := sample.DTS + s.offsetTicks
	if pts < 0 || dts < 0 {
		return model.NewStatus(model.CodeMuxerFailure, "m2ts_offset_ms did not produce a non-negative timestamp")
	}

	payload := sample.Payload
	if ts.encrypted {
		payload = s.applySampleAES(ts, payload)
	}

	switch ts.info.Codec {
	case model.CodecH264:
		au := ts.videoParams.prepend(splitLengthPrefixed(payload), sample.IsKeyFrame, false)
		if err := s.w.WriteH264(ts.track, pts, dts, au); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "writing H.264 TS packets", err)
		}
	case model.CodecH265:
		au := ts.videoParams.prepend(splitLengthPrefixed(payload), sample.IsKeyFrame, true)
		if err := s.w.WriteH265(ts.track, pts, dts, au); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "writing H.265 TS packets", err)
		}
	case model.CodecAAC:
		if err := s.w.WriteMPEG4Audio(ts.track, pts, [][]byte{payload}); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "writing AAC TS packets", err)
		}
	case model.CodecAC3:
		if err := s.w.WriteAC3(ts.track, pts, payload); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "writing AC-3 TS packets", err)
		}
	case model.CodecEAC3:
		if err := s.w.WriteEAC3(ts.track, pts, payload); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "writing E-AC-3 TS packets", err)
		}
	case model.CodecMP3:
		if err := s.w.WriteMPEG1Audio(ts.track, pts, [][]byte{payload}); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "writing MP3 TS packets", err)
		}
	case model.CodecOpus:
		if err := s.w.WriteOpus(ts.track, pts, [][]byte{payload}); err != nil {
			return model.Wrap(model.CodeMuxerFailure, "writing Opus TS packets", err)
		}
	default:
		return model.NewStatus(model.CodeUnimplemented, fmt.Sprintf("codec %s has no MPEG-2 TS mapping", ts.info.Codec))
	}
	return model.OK
}

// applySampleAES leaves the codec-appropriate clear prefix untouched and
// encrypts the remainder with the track's constant-IV AES-CBC engine.
func (s *Segmenter) applySampleAES(ts *trackState, payload []byte) []byte {
	headerLen := sampleAESHeaderLen
	if ts.info.Codec == model.CodecAC3 || ts.info.Codec == model.CodecEAC3 {
		headerLen = ac3ClearPrefixLen
	}
	if headerLen >= len(payload) {
		return payload
	}

	subsamples := []model.SubsampleEntry{{
		ClearBytes:  uint16(headerLen),
		CipherBytes: uint32(len(payload) - headerLen),
	}}
	out, status := ts.engine.Transform(payload, subsamples, true)
	if !status.Ok() {
		// The engine only fails on malformed subsample bounds, which cannot
		// happen here since headerLen was checked against len(payload).
		return payload
	}
	return out
}

// WriteTables flushes PAT/PMT immediately, independent of sample writes.
// Useful for priming late-joining HLS clients with a self-contained header.
func (s *Segmenter) WriteTables() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteTables(); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "writing PAT/PMT tables", err)
	}
	return model.OK
}

// tsCodecFor maps a StreamInfo onto the mediacommon mpegts.Codec describing
// its elementary stream type.
func tsCodecFor(s model.StreamInfo) (mpegts.Codec, model.Status) {
	switch s.Codec {
	case model.CodecH264:
		return &mpegts.CodecH264{}, model.OK
	case model.CodecH265:
		return &mpegts.CodecH265{}, model.OK
	case model.CodecAAC:
		var asc mpeg4audio.AudioSpecificConfig
		if err := asc.Unmarshal(s.CodecConfig); err != nil {
			return nil, model.Wrap(model.CodeParserFailure, "parsing AudioSpecificConfig", err)
		}
		return &mpegts.CodecMPEG4Audio{Config: asc}, model.OK
	case model.CodecAC3:
		return &mpegts.CodecAC3{SampleRate: s.Audio.SampleRate, ChannelCount: s.Audio.ChannelCount}, model.OK
	case model.CodecEAC3:
		return &mpegts.CodecEAC3{SampleRate: s.Audio.SampleRate, ChannelCount: s.Audio.ChannelCount}, model.OK
	case model.CodecMP3:
		return &mpegts.CodecMPEG1Audio{}, model.OK
	case model.CodecOpus:
		return &mpegts.CodecOpus{ChannelCount: s.Audio.ChannelCount}, model.OK
	default:
		return nil, model.NewStatus(model.CodeUnimplemented, fmt.Sprintf("codec %s has no MPEG-2 TS mapping", s.Codec))
	}
}

// splitLengthPrefixed reverses internal/codecs' 4-byte-length-prefixed
// framing, returning the individual NAL units mediacommon's WriteH264/
// WriteH265 expect.
func splitLengthPrefixed(data []byte) [][]byte {
	var out [][]byte
	for i := 0; i+4 <= len(data); {
		n := int(uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3]))
		i += 4
		if i+n > len(data) {
			break
		}
		out = append(out, data[i:i+n])
		i += n
	}
	return out
}
