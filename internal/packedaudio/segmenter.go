// Package packedaudio assembles "MPEG-Packed Audio" segments for HLS: an
// ID3v2.4 tag carrying a PRIV timestamp frame (and, for an encrypted track,
// an audio-description frame) followed by back-to-back ADTS/AC-3/E-AC-3/MP3
// frames. Unlike internal/mpegts, there is no container framing at all past
// the ID3 header; the caller's demuxer already produced frame-aligned input.
package packedaudio

import (
	"bytes"
	"fmt"

	"github.com/jmylchreest/livepackager/internal/codecs"
	"github.com/jmylchreest/livepackager/internal/crypto"
	"github.com/jmylchreest/livepackager/internal/model"
)

// Timescale is the fixed 90 kHz clock packed-audio PTS values are expressed
// in, independent of the source track's own timescale.
const Timescale = 90000

// ac3SetupDataSize is the AC-3/E-AC-3 syncframe prefix length the MPEG-2
// Stream Encryption Format for HLS specifies as the codec's setup data,
// substituted for the stream's own CodecConfig blob.
const ac3SetupDataSize = 10

// sampleAESHeaderLen is the clear-header length the MPEG-2 Stream Encryption
// Format for HLS prescribes for Sample-AES frames, mirroring the PES-payload
// convention internal/mpegts applies to TS Sample-AES.
const sampleAESHeaderLen = 16

// Config parameterizes a Segmenter.
type Config struct {
	// TransportStreamTimestampOffsetMs is added to every segment's leading
	// PTS before it is written into the ID3 timestamp frame. Must be
	// non-negative.
	TransportStreamTimestampOffsetMs int64

	// Encrypted marks the track as Sample-AES protected, causing every
	// segment's ID3 tag to carry an audioDescription PRIV frame.
	Encrypted bool

	// Engine, when non-nil, Sample-AES-encrypts each frame after ADTS/AC-3
	// framing is applied, leaving the codec-appropriate clear prefix intact.
	// Nil leaves frames unencrypted even when Encrypted is set, for callers
	// that only want the audioDescription metadata without payload protection.
	Engine *crypto.Engine
}

// Segmenter accumulates one audio track's frames into packed-audio segments.
// The caller drives segment boundaries explicitly: AddSample opens a new
// segment's ID3 tag on the first call since the last FinalizeSegment.
type Segmenter struct {
	info  model.StreamInfo
	aac   *codecs.AACAdapter
	scale float64

	offsetTicks int64

	needsAudioDescription bool
	audioDescription      []byte
	engine                *crypto.Engine

	buf            bytes.Buffer
	startOfSegment bool
}

// NewSegmenter constructs a Segmenter for a single audio stream.
func NewSegmenter(info model.StreamInfo, cfg Config) (*Segmenter, model.Status) {
	if info.Kind != model.KindAudio {
		return nil, model.NewStatus(model.CodeMuxerFailure, "packed audio segments only carry audio streams")
	}
	if status := info.Validate(); !status.Ok() {
		return nil, status
	}
	if cfg.TransportStreamTimestampOffsetMs < 0 {
		return nil, model.NewStatus(model.CodeMuxerFailure, "transport_stream_timestamp_offset_ms must be non-negative")
	}

	s := &Segmenter{
		info:                  info,
		scale:                 float64(Timescale) / float64(info.Timescale),
		offsetTicks:           cfg.TransportStreamTimestampOffsetMs * Timescale / 1000,
		needsAudioDescription: cfg.Encrypted,
		engine:                cfg.Engine,
		startOfSegment:        true,
	}

	if info.Codec == model.CodecAAC {
		aac, status := codecs.NewAACAdapter(info.CodecConfig)
		if !status.Ok() {
			return nil, status
		}
		s.aac = aac
	}
	return s, model.OK
}

// AddSample appends one audio frame to the in-progress segment.
func (s *Segmenter) AddSample(sample model.MediaSample) model.Status {
	if s.needsAudioDescription && s.audioDescription == nil {
		desc, status := s.buildAudioDescription(sample)
		if !status.Ok() {
			return status
		}
		s.audioDescription = desc
	}

	if s.startOfSegment {
		if status := s.startNewSegment(sample.PTS); !status.Ok() {
			return status
		}
		s.startOfSegment = false
	}

	frame := sample.Payload
	if s.aac != nil {
		adts, status := s.aac.ToADTS(sample.Payload)
		if !status.Ok() {
			return status
		}
		frame = adts
	}
	if s.engine != nil {
		frame = s.applySampleAES(frame)
	}
	s.buf.Write(frame)
	return model.OK
}

// applySampleAES leaves the codec-appropriate clear prefix untouched and
// encrypts the remainder, matching internal/mpegts's Sample-AES envelope for
// TS so the same constant-IV engine protects a track regardless of output
// format.
func (s *Segmenter) applySampleAES(frame []byte) []byte {
	headerLen := sampleAESHeaderLen
	if s.info.Codec == model.CodecAC3 || s.info.Codec == model.CodecEAC3 {
		headerLen = ac3SetupDataSize
	}
	if headerLen >= len(frame) {
		return frame
	}

	subsamples := []model.SubsampleEntry{{
		ClearBytes:  uint16(headerLen),
		CipherBytes: uint32(len(frame) - headerLen),
	}}
	out, status := s.engine.Transform(frame, subsamples, true)
	if !status.Ok() {
		return frame
	}
	return out
}

// FinalizeSegment closes the in-progress segment and returns its bytes. The
// Segmenter is reset to open a fresh segment on the next AddSample call.
func (s *Segmenter) FinalizeSegment() ([]byte, model.Status) {
	if s.startOfSegment {
		return nil, model.NewStatus(model.CodeChunkingError, "FinalizeSegment called before any sample started the segment")
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	s.startOfSegment = true
	return out, model.OK
}

// TimescaleScale reports the ratio between the 90 kHz packed-audio clock and
// the track's own timescale, for callers translating segment-boundary
// timestamps into this segmenter's clock.
func (s *Segmenter) TimescaleScale() float64 {
	return s.scale
}

func (s *Segmenter) startNewSegment(pts int64) model.Status {
	scaled := int64(float64(pts)*s.scale) + s.offsetTicks
	if scaled < 0 {
		return model.NewStatus(model.CodeMuxerFailure, "transport_stream_timestamp_offset_ms did not produce a non-negative timestamp")
	}

	tag := &id3Tag{}
	tag.addPrivateFrame(timestampOwnerIdentifier, encodeTimestamp(scaled))
	if len(s.audioDescription) > 0 {
		tag.addPrivateFrame(audioDescriptionOwnerIdentifier, s.audioDescription)
	}
	encoded, status := tag.encode()
	if !status.Ok() {
		return status
	}
	s.buf.Write(encoded)
	return model.OK
}

// buildAudioDescription computes the audio setup data: the stream's own
// CodecConfig for every codec except AC-3/E-AC-3, for which the MPEG-2
// Stream Encryption Format for HLS substitutes the first bytes of the
// syncframe itself.
func (s *Segmenter) buildAudioDescription(sample model.MediaSample) ([]byte, model.Status) {
	setupData := s.info.CodecConfig
	if s.info.Codec == model.CodecAC3 || s.info.Codec == model.CodecEAC3 {
		if len(sample.Payload) < ac3SetupDataSize {
			return nil, model.NewStatus(model.CodeMuxerFailure, fmt.Sprintf("sample too small for AC-3 audio setup information: %d bytes", len(sample.Payload)))
		}
		setupData = sample.Payload[:ac3SetupDataSize]
	}
	return buildAudioDescription(s.info.Codec, setupData)
}
