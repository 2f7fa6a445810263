// Package packager ties internal/isobmff, internal/mpegts, internal/
// packedaudio, internal/timedtext, and internal/crypto together behind the
// single-segment-in/single-segment-out entry points an embedder drives.
package packager

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jmylchreest/livepackager/internal/crypto"
	"github.com/jmylchreest/livepackager/internal/isobmff"
	"github.com/jmylchreest/livepackager/internal/model"
	"github.com/jmylchreest/livepackager/internal/mpegts"
	"github.com/jmylchreest/livepackager/internal/observability"
	"github.com/jmylchreest/livepackager/internal/packedaudio"
	"github.com/jmylchreest/livepackager/internal/timedtext"
	"github.com/jmylchreest/livepackager/pkg/bytesize"
)

// LivePackager transforms one already-demuxed init blob plus one
// already-demuxed media segment into a reformatted segment, per a fixed
// Config chosen at construction time. Package* methods are strictly
// sequential; parallelism is achieved by constructing independent
// LivePackager instances on independent goroutines.
type LivePackager struct {
	cfg    Config
	id     string
	logger *slog.Logger
}

// New validates cfg and returns a LivePackager carrying a fresh correlation
// id for log correlation across its Package* calls.
func New(cfg Config, logger *slog.Logger) (*LivePackager, model.Status) {
	if status := cfg.Validate(); !status.Ok() {
		return nil, status
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	logger = observability.WithPackagerID(observability.WithComponent(logger, "packager"), id)
	return &LivePackager{cfg: cfg, id: id, logger: logger}, model.OK
}

// ID returns this packager's correlation id.
func (p *LivePackager) ID() string {
	return p.id
}

// selectTrack returns the single StreamInfo of kind from streams, enforcing
// CMAF's one-track-per-init-segment constraint: every Package* call targets
// exactly one output track, chosen by p.cfg.TrackType.
func selectTrack(streams []model.StreamInfo, kind model.Kind) (model.StreamInfo, model.Status) {
	var match model.StreamInfo
	count := 0
	for _, s := range streams {
		if s.Kind == kind {
			match = s
			count++
		}
	}
	switch count {
	case 0:
		return model.StreamInfo{}, model.NewStatus(model.CodeNotFound,
			fmt.Sprintf("no %s track found in the initialization segment", kind))
	case 1:
		return match, model.OK
	default:
		return model.StreamInfo{}, model.NewStatus(model.CodeInvalidArgument,
			fmt.Sprintf("initialization segment carries %d %s tracks; exactly one is required", count, kind))
	}
}

// PackageInit emits a fresh init segment derived from the parsed input init,
// in the output format p.cfg.Format selects.
func (p *LivePackager) PackageInit(initBytes []byte) (*model.SegmentBuffer, model.Status) {
	p.logger.Debug("package_init", slog.String("format", p.cfg.Format.String()))

	if p.cfg.Format.isTimedText() {
		return nil, model.NewStatus(model.CodeInvalidArgument, "use PackageTimedTextInit for timed-text formats")
	}

	streams, status := parseInit(initBytes)
	if !status.Ok() {
		return nil, status
	}
	track, status := selectTrack(streams, p.cfg.TrackType)
	if !status.Ok() {
		return nil, status
	}
	p.logKeyRotation(track)

	buf := model.NewSegmentBuffer()
	switch p.cfg.Format {
	case FormatFMP4:
		status = p.packageFMP4Init(buf, track)
	case FormatTS:
		status = p.packageTSInit(buf, track)
	case FormatPackedAudio:
		// Packed audio has no separate initialization segment: all setup
		// information travels in the first media segment's ID3 tag.
		status = model.NewStatus(model.CodeUnimplemented, "packed_audio format has no initialization segment")
	default:
		status = model.NewStatus(model.CodeUnimplemented, fmt.Sprintf("format %s has no init-segment handler", p.cfg.Format))
	}
	if !status.Ok() {
		return nil, status
	}
	if err := buf.MarkInitBoundary(); err != nil {
		return nil, model.Wrap(model.CodeInternalError, "marking init boundary", err)
	}
	p.logger.Debug("package_init done", slog.String("size", bytesize.Size(buf.Size()).String()))
	return buf, model.OK
}

// Package emits a media segment from mediaBytes; initBytes is consulted only
// for codec configuration and is not re-emitted.
func (p *LivePackager) Package(initBytes, mediaBytes []byte) (*model.SegmentBuffer, model.Status) {
	p.logger.Debug("package", slog.String("format", p.cfg.Format.String()), slog.Uint64("segment_number", uint64(p.cfg.SegmentNumber)))

	if p.cfg.Format.isTimedText() {
		return nil, model.NewStatus(model.CodeInvalidArgument, "use PackageTimedText for timed-text formats")
	}

	streams, status := parseInit(initBytes)
	if !status.Ok() {
		return nil, status
	}
	track, status := selectTrack(streams, p.cfg.TrackType)
	if !status.Ok() {
		return nil, status
	}

	samplesByTrack, status := parseMedia(mediaBytes)
	if !status.Ok() {
		return nil, status
	}
	samples := samplesByTrack[track.TrackID]
	if status := p.decryptSamples(samples); !status.Ok() {
		return nil, status
	}

	buf := model.NewSegmentBuffer()
	switch p.cfg.Format {
	case FormatFMP4:
		status = p.packageFMP4Media(buf, track, samples)
	case FormatTS:
		status = p.packageTSMedia(buf, track, samples)
	case FormatPackedAudio:
		status = p.packagePackedAudioMedia(buf, track, samples)
	default:
		status = model.NewStatus(model.CodeUnimplemented, fmt.Sprintf("format %s has no media-segment handler", p.cfg.Format))
	}
	if !status.Ok() {
		return nil, status
	}
	p.logger.Debug("package done", slog.String("size", bytesize.Size(buf.Size()).String()))
	return buf, model.OK
}

// PackageTimedTextInit is PackageInit's analogue for vtt_mp4/ttml_mp4.
func (p *LivePackager) PackageTimedTextInit(initBytes []byte) (*model.SegmentBuffer, model.Status) {
	if !p.cfg.Format.isTimedText() || p.cfg.Format == FormatTTML {
		return nil, model.NewStatus(model.CodeInvalidArgument, "PackageTimedTextInit requires format vtt_mp4 or ttml_mp4")
	}

	streams, status := parseInit(initBytes)
	if !status.Ok() {
		return nil, status
	}
	track, status := selectTrack(streams, model.KindText)
	if !status.Ok() {
		return nil, status
	}

	builder, status := timedtext.NewBuilder(track)
	if !status.Ok() {
		return nil, status
	}

	buf := model.NewSegmentBuffer()
	if status := builder.FinalizeInit(buf); !status.Ok() {
		return nil, status
	}
	if err := buf.MarkInitBoundary(); err != nil {
		return nil, model.Wrap(model.CodeInternalError, "marking init boundary", err)
	}
	return buf, model.OK
}

// PackageTimedText is Package's analogue for vtt_mp4/ttml_mp4. For the bare
// ttml format mediaBytes passes through unchanged: a standalone TTML
// document carries no container framing to rewrite.
func (p *LivePackager) PackageTimedText(initBytes, mediaBytes []byte) (*model.SegmentBuffer, model.Status) {
	if !p.cfg.Format.isTimedText() {
		return nil, model.NewStatus(model.CodeInvalidArgument, "PackageTimedText requires a timed-text format")
	}

	buf := model.NewSegmentBuffer()

	if p.cfg.Format == FormatTTML {
		if _, err := buf.Write(mediaBytes); err != nil {
			return nil, model.Wrap(model.CodeMuxerFailure, "writing bare TTML passthrough", err)
		}
		return buf, model.OK
	}

	streams, status := parseInit(initBytes)
	if !status.Ok() {
		return nil, status
	}
	track, status := selectTrack(streams, model.KindText)
	if !status.Ok() {
		return nil, status
	}

	samplesByTrack, status := parseMedia(mediaBytes)
	if !status.Ok() {
		return nil, status
	}

	builder, status := timedtext.NewBuilder(track)
	if !status.Ok() {
		return nil, status
	}
	for _, sample := range samplesByTrack[track.TrackID] {
		if status := builder.AddSample(sample); !status.Ok() {
			return nil, status
		}
	}
	if status := builder.FinalizeSegment(buf, p.cfg.TimedTextDecodeTime, p.cfg.SegmentNumber); !status.Ok() {
		return nil, status
	}
	return buf, model.OK
}

func (p *LivePackager) packageFMP4Init(buf *model.SegmentBuffer, track model.StreamInfo) model.Status {
	builder := isobmff.NewBuilder()
	encryption := p.encryptionMap(track)
	if status := builder.Initialize([]model.StreamInfo{track}, encryption); !status.Ok() {
		return status
	}
	return builder.FinalizeInit(buf)
}

func (p *LivePackager) packageFMP4Media(buf *model.SegmentBuffer, track model.StreamInfo, samples []model.MediaSample) model.Status {
	builder := isobmff.NewBuilder()
	encryption := p.encryptionMap(track)
	if status := builder.Initialize([]model.StreamInfo{track}, encryption); !status.Ok() {
		return status
	}
	builder.SetSequenceNumber(p.cfg.SegmentNumber)
	for _, sample := range samples {
		if status := builder.AddSample(track.TrackID, sample); !status.Ok() {
			return status
		}
	}
	return builder.FinalizeSegment(buf)
}

func (p *LivePackager) packageTSInit(buf *model.SegmentBuffer, track model.StreamInfo) model.Status {
	// A TS elementary stream carries no standalone initialization segment;
	// emit PAT+PMT only so an HLS client joining mid-stream has program
	// signaling before the first media segment arrives.
	segmenter, status := mpegts.NewSegmenter(buf, []model.StreamInfo{track}, nil, mpegts.Config{M2TSOffsetMs: p.cfg.M2TSOffsetMs})
	if !status.Ok() {
		return status
	}
	return segmenter.WriteTables()
}

func (p *LivePackager) packageTSMedia(buf *model.SegmentBuffer, track model.StreamInfo, samples []model.MediaSample) model.Status {
	encryption := p.encryptionMap(track)
	segmenter, status := mpegts.NewSegmenter(buf, []model.StreamInfo{track}, encryption, mpegts.Config{M2TSOffsetMs: p.cfg.M2TSOffsetMs})
	if !status.Ok() {
		return status
	}
	if status := segmenter.WriteTables(); !status.Ok() {
		return status
	}
	for _, sample := range samples {
		if status := segmenter.WriteSample(track.TrackID, sample); !status.Ok() {
			return status
		}
	}
	return model.OK
}

func (p *LivePackager) packagePackedAudioMedia(buf *model.SegmentBuffer, track model.StreamInfo, samples []model.MediaSample) model.Status {
	encrypted, ok := p.cfg.outputEncryption()

	cfg := packedaudio.Config{
		TransportStreamTimestampOffsetMs: p.cfg.M2TSOffsetMs,
		Encrypted:                        ok,
	}
	if ok {
		engine, status := crypto.NewEngine(encrypted.Scheme, encrypted.Key[:], encrypted.IV, encrypted.CryptByteBlock, encrypted.SkipByteBlock)
		if !status.Ok() {
			return status
		}
		cfg.Engine = engine
	}

	segmenter, status := packedaudio.NewSegmenter(track, cfg)
	if !status.Ok() {
		return status
	}
	for _, sample := range samples {
		if status := segmenter.AddSample(sample); !status.Ok() {
			return status
		}
	}
	out, status := segmenter.FinalizeSegment()
	if !status.Ok() {
		return status
	}
	if _, err := buf.Write(out); err != nil {
		return model.Wrap(model.CodeMuxerFailure, "writing packed-audio segment", err)
	}
	return model.OK
}

// logKeyRotation detects and logs the key-rotation event spec.md §4.3
// describes, when the caller has told this Config what key id the prior
// init segment for track carried via PreviousKeyID. The new key id's pssh
// is spliced into the init segment unconditionally by packageFMP4Init's
// encryptionMap; this only adds the observable rotation signal a caller
// monitoring crypto period boundaries across packager instances would watch.
func (p *LivePackager) logKeyRotation(track model.StreamInfo) {
	enc, ok := p.cfg.outputEncryption()
	if !ok {
		return
	}
	previous := model.EncryptionConfig{KeyID: p.cfg.PreviousKeyID}
	if info, rotated := detectKeyRotation(previous, enc, p.cfg.HasPreviousKeyID); rotated {
		p.logger.Info("key rotation",
			slog.Int("track_id", track.TrackID),
			slog.String("key_id", fmt.Sprintf("%x", info.KeyRotation.KeyID)))
	}
}

// encryptionMap builds the single-track {trackID: EncryptionConfig} map
// internal/isobmff.Builder.Initialize and internal/mpegts.NewSegmenter both
// expect, or nil when p.cfg carries no output protection scheme.
func (p *LivePackager) encryptionMap(track model.StreamInfo) map[int]model.EncryptionConfig {
	enc, ok := p.cfg.outputEncryption()
	if !ok {
		return nil
	}
	return map[int]model.EncryptionConfig{track.TrackID: enc}
}

// decryptSamples applies p.cfg's decryption key to every sample in place,
// when EnableDecryption is set. Input is treated as one full-sample cipher
// region per sample (no senc/saiz table to consult for already-packaged
// input), which is sufficient for the common case of CBCS/CENC content
// encrypted whole-sample but does not recover an arbitrary subsample layout
// the caller does not also supply via sample.Decrypt.
func (p *LivePackager) decryptSamples(samples []model.MediaSample) model.Status {
	if !p.cfg.EnableDecryption {
		return model.OK
	}
	engine, status := crypto.NewEngine(p.cfg.DecryptionScheme, p.cfg.DecryptionKey[:], p.cfg.DecryptionIV, 0, 0)
	if !status.Ok() {
		return status
	}
	for i, sample := range samples {
		subsamples := []model.SubsampleEntry(nil)
		if sample.Decrypt != nil {
			subsamples = sample.Decrypt.Subsamples
		}
		plain, status := engine.Transform(sample.Payload, subsamples, false)
		if !status.Ok() {
			return status
		}
		samples[i].Payload = plain
	}
	return model.OK
}
