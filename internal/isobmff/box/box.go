// Package box implements the minimal tagged-hierarchy ISO-BMFF box model
// this packager needs to splice CENC/Sample-AES protection boxes into a
// fragment mediacommon has already marshaled: senc, saiz, saio, sinf, schm,
// schi, tenc, pssh. mediacommon's fmp4/mp4 packages have no encryption
// support, so these boxes are assembled independently and spliced into the
// traf/stsd byte ranges mediacommon produced.
//
// Sizing follows the bottom-up, two-pass discipline every ISO-BMFF box
// uses: ComputeSize walks the tree once recording sizes, Marshal walks it
// again writing bytes; a box must not be marshaled before ComputeSize has
// run over it.
package box

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Box is a node in the tagged hierarchy: either a plain box (ftyp-style,
// type+payload+children) or a FullBox (version+flags prefix the payload).
type Box struct {
	Type    [4]byte
	IsFull  bool
	Version byte
	Flags   uint32 // low 24 bits significant

	// Payload is this box's own content, excluding any FullBox header and
	// excluding Children (which are marshaled after Payload).
	Payload []byte

	Children []*Box

	size     uint64
	extended bool
}

// New returns a plain (non-FullBox) box.
func New(boxType string, payload []byte, children ...*Box) *Box {
	return &Box{Type: fourCC(boxType), Payload: payload, Children: children}
}

// NewFull returns a FullBox with the given version and 24-bit flags.
func NewFull(boxType string, version byte, flags uint32, payload []byte, children ...*Box) *Box {
	return &Box{
		Type:     fourCC(boxType),
		IsFull:   true,
		Version:  version,
		Flags:    flags & 0x00FFFFFF,
		Payload:  payload,
		Children: children,
	}
}

func fourCC(s string) [4]byte {
	var out [4]byte
	copy(out[:], s)
	return out
}

// ComputeSize walks the tree bottom-up, recording each box's total encoded
// size (header + FullBox prefix + payload + children). Sizes exceeding
// 2^32-1 switch that box to the 64-bit extended-size header form. Returns
// the size of b itself.
func (b *Box) ComputeSize() uint64 {
	body := uint64(len(b.Payload))
	if b.IsFull {
		body += 4
	}
	for _, c := range b.Children {
		body += c.ComputeSize()
	}

	header := uint64(8)
	total := header + body
	if total > 0xFFFFFFFF {
		header = 16
		total = header + body
		b.extended = true
	}
	b.size = total
	return total
}

// Size returns the size ComputeSize last recorded. Zero until ComputeSize
// has run.
func (b *Box) Size() uint64 {
	return b.size
}

// Marshal writes b and its children to w. ComputeSize must have been called
// on b (directly, or as part of an ancestor's ComputeSize) first.
func (b *Box) Marshal(w io.Writer) error {
	if b.size == 0 {
		return fmt.Errorf("box %q: ComputeSize not called", b.Type)
	}

	if b.extended {
		if err := writeAll(w, be32(1), b.Type[:], be64(b.size)); err != nil {
			return err
		}
	} else {
		if err := writeAll(w, be32(uint32(b.size)), b.Type[:]); err != nil {
			return err
		}
	}

	if b.IsFull {
		versionAndFlags := (uint32(b.Version) << 24) | (b.Flags & 0x00FFFFFF)
		if err := writeAll(w, be32(versionAndFlags)); err != nil {
			return err
		}
	}

	if err := writeAll(w, b.Payload); err != nil {
		return err
	}

	for _, c := range b.Children {
		if err := c.Marshal(w); err != nil {
			return err
		}
	}
	return nil
}

// MarshalToBytes is a convenience wrapper returning the marshaled bytes
// directly; it calls ComputeSize first.
func MarshalToBytes(b *Box) ([]byte, error) {
	b.ComputeSize()
	buf := make([]byte, 0, b.size)
	w := &byteSliceWriter{buf: buf}
	if err := b.Marshal(w); err != nil {
		return nil, err
	}
	return w.buf, nil
}

type byteSliceWriter struct{ buf []byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func writeAll(w io.Writer, chunks ...[]byte) error {
	for _, c := range chunks {
		if _, err := w.Write(c); err != nil {
			return err
		}
	}
	return nil
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
