package action

import (
	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v3"

	"github.com/envelope-project/laik-go/cmn/errs"
)

// Codec compresses/decompresses a PackAndSend/RecvAndUnpack staging
// buffer before it reaches the backend (spec.md §4.H [ADDED]: "optional
// bounce-buffer compression ... selectable per Instance config"). This
// is entirely a staging-buffer concern; it never touches wire format,
// which stays the backend's concern per spec.md §6.
type Codec interface {
	Name() string
	Encode(src []byte) []byte
	Decode(src []byte, sizeHint int) ([]byte, error)
}

// CompressNone is the default: pass the bounce buffer through unchanged.
type CompressNone struct{}

func (CompressNone) Name() string                            { return "none" }
func (CompressNone) Encode(src []byte) []byte                { return src }
func (CompressNone) Decode(src []byte, _ int) ([]byte, error) { return src, nil }

// CompressS2 stages bounce buffers through github.com/klauspost/compress/s2,
// mirroring the teacher's bundle.Extra{Compression} knob on its data mover.
type CompressS2 struct{}

func (CompressS2) Name() string { return "s2" }

func (CompressS2) Encode(src []byte) []byte {
	return s2.Encode(make([]byte, s2.MaxEncodedLen(len(src))), src)
}

func (CompressS2) Decode(src []byte, sizeHint int) ([]byte, error) {
	dst := make([]byte, 0, sizeHint)
	out, err := s2.Decode(dst, src)
	if err != nil {
		return nil, errs.Wrap(err, "action: s2 decode")
	}
	return out, nil
}

// CompressLZ4 stages bounce buffers through github.com/pierrec/lz4/v3's
// block API.
type CompressLZ4 struct{}

func (CompressLZ4) Name() string { return "lz4" }

func (CompressLZ4) Encode(src []byte) []byte {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil || n == 0 {
		// incompressible or too small for a block header: ship raw
		// behind a 0 tag byte, which Decode returns unchanged.
		return append([]byte{0}, src...)
	}
	return append([]byte{1}, dst[:n]...)
}

func (CompressLZ4) Decode(src []byte, sizeHint int) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	tag, body := src[0], src[1:]
	if tag == 0 {
		return body, nil
	}
	dst := make([]byte, sizeHint)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, errs.Wrap(err, "action: lz4 decode")
	}
	return dst[:n], nil
}
