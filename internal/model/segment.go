package model

import "fmt"

// SegmentInfo describes one segment boundary event.
type SegmentInfo struct {
	StartTicks    int64
	DurationTicks int64
	IsSubsegment  bool

	// KeyRotation is non-nil when this segment boundary coincides with a
	// key-rotation event; the builder must emit updated pssh/KEY metadata.
	KeyRotation *EncryptionConfig
}

// SegmentBuffer is an append-only byte sink with a recorded init-size
// prefix: everything written before MarkInitBoundary belongs to the
// initialization segment view, everything after belongs to the media
// segment view. A single contiguous backing buffer is used so that callers
// can hand the whole thing to an io.Writer without copying.
type SegmentBuffer struct {
	buf      []byte
	initSize int
	marked   bool
}

// NewSegmentBuffer returns an empty SegmentBuffer.
func NewSegmentBuffer() *SegmentBuffer {
	return &SegmentBuffer{}
}

// Write implements io.Writer, appending to the backing buffer.
func (b *SegmentBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// MarkInitBoundary records the current length as the init-segment size. It
// may only be called once; callers that need a buffer with no init segment
// (media-only output) simply never call it, and InitSegmentSize reports 0.
func (b *SegmentBuffer) MarkInitBoundary() error {
	if b.marked {
		return fmt.Errorf("init boundary already marked at offset %d", b.initSize)
	}
	b.initSize = len(b.buf)
	b.marked = true
	return nil
}

// InitSegmentData returns the bytes written before MarkInitBoundary.
func (b *SegmentBuffer) InitSegmentData() []byte {
	return b.buf[:b.initSize]
}

// InitSegmentSize returns len(InitSegmentData()).
func (b *SegmentBuffer) InitSegmentSize() int {
	return b.initSize
}

// SegmentData returns the bytes written after MarkInitBoundary (or the
// whole buffer, if MarkInitBoundary was never called).
func (b *SegmentBuffer) SegmentData() []byte {
	return b.buf[b.initSize:]
}

// SegmentSize returns len(SegmentData()).
func (b *SegmentBuffer) SegmentSize() int {
	return len(b.buf) - b.initSize
}

// Size returns the total number of bytes written.
func (b *SegmentBuffer) Size() int {
	return len(b.buf)
}

// Bytes returns the full contiguous backing buffer.
func (b *SegmentBuffer) Bytes() []byte {
	return b.buf
}
