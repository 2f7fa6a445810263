package packedaudio

import (
	"encoding/binary"
	"fmt"

	"github.com/jmylchreest/livepackager/internal/model"
)

const (
	id3v2Identifier  = "ID3"
	id3v2Version     = 0x0400 // id3v2.4.0
	maxSynchsafeSize = 0x0FFFFFFF

	timestampOwnerIdentifier        = "com.apple.streaming.transportStreamTimestamp"
	audioDescriptionOwnerIdentifier = "com.apple.streaming.audioDescription"
)

// privateFrame is one PRIV frame awaiting encoding into an id3Tag.
type privateFrame struct {
	owner string
	data  []byte
}

// id3Tag accumulates PRIV frames for one ID3v2.4 tag, per
// http://id3.org/id3v2.4.0-structure and the PRIV layout
// http://id3.org/id3v2.4.0-frames section 4.27 describes.
type id3Tag struct {
	frames []privateFrame
}

func (t *id3Tag) addPrivateFrame(owner string, data []byte) {
	t.frames = append(t.frames, privateFrame{owner: owner, data: data})
}

// encode renders the tag header plus every accumulated PRIV frame.
func (t *id3Tag) encode() ([]byte, model.Status) {
	var frames []byte
	for _, f := range t.frames {
		encoded, status := encodePrivateFrame(f)
		if !status.Ok() {
			return nil, status
		}
		frames = append(frames, encoded...)
	}
	if len(frames) > maxSynchsafeSize {
		return nil, model.NewStatus(model.CodeMuxerFailure, "ID3 frame block exceeds the synchsafe size limit")
	}

	out := make([]byte, 0, 10+len(frames))
	out = append(out, id3v2Identifier...)
	out = binary.BigEndian.AppendUint16(out, id3v2Version)
	out = append(out, 0) // flags
	out = binary.BigEndian.AppendUint32(out, encodeSynchsafe(uint32(len(frames))))
	return append(out, frames...), model.OK
}

// encodePrivateFrame writes one PRIV frame: a 4-byte "PRIV" id, a synchsafe
// size, 2 flag bytes, the owner string, a NUL terminator, then the raw data.
// Unlike ordinary ID3 text frames there is no leading text-encoding byte.
func encodePrivateFrame(f privateFrame) ([]byte, model.Status) {
	size := len(f.owner) + 1 + len(f.data)
	if size > maxSynchsafeSize {
		return nil, model.NewStatus(model.CodeMuxerFailure, fmt.Sprintf("PRIV frame %q exceeds the synchsafe size limit", f.owner))
	}

	out := make([]byte, 0, 10+size)
	out = append(out, "PRIV"...)
	out = binary.BigEndian.AppendUint32(out, encodeSynchsafe(uint32(size)))
	out = binary.BigEndian.AppendUint16(out, 0) // flags
	out = append(out, f.owner...)
	out = append(out, 0)
	out = append(out, f.data...)
	return out, model.OK
}

// encodeSynchsafe zeroes the most significant bit of every byte in size, the
// "synchsafe integer" encoding id3v2.4.0-structure section 6.2 requires so a
// tag's declared size can never be mistaken for a frame sync pattern.
func encodeSynchsafe(size uint32) uint32 {
	return (size & 0x7F) | (((size >> 7) & 0x7F) << 8) |
		(((size >> 14) & 0x7F) << 16) | (((size >> 21) & 0x7F) << 24)
}

// encodeTimestamp renders a PTS as the 33-bit-significant, 8-byte big-endian
// integer RFC 8216's transportStreamTimestamp PRIV frame requires: the upper
// 31 bits are zeroed and the low 33 bits carry the PTS in 90 kHz ticks.
func encodeTimestamp(pts int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(pts)&0x1FFFFFFFF)
	return out
}

// audioSetupCodecTag maps a packed-audio codec onto the 4-byte tag its
// audioDescription PRIV frame body leads with.
func audioSetupCodecTag(codec model.Codec) (string, model.Status) {
	switch codec {
	case model.CodecAAC:
		return "mp4a", model.OK
	case model.CodecAC3:
		return "ac-3", model.OK
	case model.CodecEAC3:
		return "ec-3", model.OK
	case model.CodecMP3:
		return ".mp3", model.OK
	default:
		return "", model.NewStatus(model.CodeMuxerFailure, fmt.Sprintf("codec %s has no packed-audio setup information encoding", codec))
	}
}

// buildAudioDescription assembles the audioDescription PRIV frame body: a
// 4-byte codec tag followed directly by the codec-configuration bytes.
func buildAudioDescription(codec model.Codec, codecConfig []byte) ([]byte, model.Status) {
	tag, status := audioSetupCodecTag(codec)
	if !status.Ok() {
		return nil, status
	}
	out := make([]byte, 0, 4+len(codecConfig))
	out = append(out, tag...)
	return append(out, codecConfig...), model.OK
}
