package models

import (
	"encoding/hex"
	"math/bits"

	"github.com/prysmaticlabs/go-bitfield"

	dErrors "rlregistry/pkg/domain-errors"
)

const (
	// Capacity is the fixed number of addressable bits in every revocation list.
	Capacity = 32768
	// ByteLength is the size of the raw bitmap.
	ByteLength = Capacity / 8
	// EncodedLength is the length of the canonical hex encoding.
	EncodedLength = ByteLength * 2
)

// Bitmap is the fixed-capacity bit store of a revocation list.
//
// Bit i lives in byte i/8 under mask 1<<(i%8), least-significant bit first. The
// encoded form is the bytes in order (byte 0 first) as lowercase hex. This layout is
// a storage and wire contract shared by every backend.
//
// The backing bitfield.Bitlist carries its length bit in one extra trailing byte;
// only the first ByteLength bytes are ever exposed.
type Bitmap struct {
	bits bitfield.Bitlist
}

// NewBitmap returns an all-zero bitmap.
func NewBitmap() *Bitmap {
	return &Bitmap{bits: bitfield.NewBitlist(Capacity)}
}

// BitmapFromBytes builds a bitmap from exactly ByteLength raw bytes. The input is copied.
func BitmapFromBytes(raw []byte) (*Bitmap, error) {
	if len(raw) != ByteLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"bitmap must be %d bytes, got %d", ByteLength, len(raw))
	}
	b := NewBitmap()
	copy(b.bits[:ByteLength], raw)
	return b, nil
}

// DecodeBitmap parses the canonical hex encoding. Upper-case digits are accepted.
func DecodeBitmap(encoded string) (*Bitmap, error) {
	if len(encoded) != EncodedLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"encoded list must be %d hex characters, got %d", EncodedLength, len(encoded))
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "encoded list is not valid hex")
	}
	return BitmapFromBytes(raw)
}

// Get reports whether bit index is set. Callers validate index with CheckIndex.
func (b *Bitmap) Get(index uint32) bool {
	return b.bits.BitAt(uint64(index))
}

// Set writes bit index.
func (b *Bitmap) Set(index uint32, value bool) {
	b.bits.SetBitAt(uint64(index), value)
}

// Apply writes a normalized batch: sets first, then clears.
func (b *Bitmap) Apply(batch Batch) {
	batch.eachSet(func(i uint32) { b.bits.SetBitAt(uint64(i), true) })
	batch.eachClear(func(i uint32) { b.bits.SetBitAt(uint64(i), false) })
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for _, v := range b.bits[:ByteLength] {
		n += bits.OnesCount8(v)
	}
	return n
}

// Bytes returns a copy of the raw bitmap.
func (b *Bitmap) Bytes() []byte {
	out := make([]byte, ByteLength)
	copy(out, b.bits[:ByteLength])
	return out
}

// Encode returns the canonical lowercase hex encoding.
func (b *Bitmap) Encode() string {
	return hex.EncodeToString(b.bits[:ByteLength])
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	c := make(bitfield.Bitlist, len(b.bits))
	copy(c, b.bits)
	return &Bitmap{bits: c}
}

// Equal reports whether both bitmaps hold the same bits.
func (b *Bitmap) Equal(other *Bitmap) bool {
	if other == nil {
		return false
	}
	return string(b.bits[:ByteLength]) == string(other.bits[:ByteLength])
}

// CheckIndex validates that index addresses a bit of a list.
func CheckIndex(index int) error {
	if index < 0 || index >= Capacity {
		return dErrors.Newf(dErrors.CodeOutOfRange,
			"index %d out of range [0, %d]", index, Capacity-1)
	}
	return nil
}
