package packager

import "github.com/jmylchreest/livepackager/internal/model"

// detectKeyRotation compares the encryption configuration used for a
// track's previous segment against current, realizing spec.md §4.3's "the
// engine emits a key-rotation event through the segmenter" for this
// façade's one-call-per-segment shape: a crypto period boundary is simply
// the caller supplying a different KeyID on a later Package call for the
// same track. ok is false when there is no previous segment to compare
// against (the track's first segment) or the key id is unchanged.
func detectKeyRotation(previous, current model.EncryptionConfig, hadPrevious bool) (model.SegmentInfo, bool) {
	if !hadPrevious || previous.KeyID == current.KeyID {
		return model.SegmentInfo{}, false
	}
	rotated := current
	return model.SegmentInfo{KeyRotation: &rotated}, true
}
