package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"rlregistry/internal/revocation/models"
)

// magic prefixes every snapshot object; bump the digit on format changes.
var magic = [4]byte{'R', 'L', 'S', '1'}

// ErrBadFormat is returned when an object is not a snapshot this version can read.
var ErrBadFormat = errors.New("snapshot: unrecognised format")

// Record is one list in a snapshot.
type Record struct {
	ID     models.ListID
	Bitmap *models.Bitmap
}

// Encode writes the magic followed by a zstd stream of records, each laid out as
// [u16 big-endian id length][id][ByteLength bitmap bytes].
func Encode(w io.Writer, records []Record) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	var lenBuf [2]byte
	for _, rec := range records {
		if len(rec.ID) > math.MaxUint16 {
			_ = enc.Close()
			return fmt.Errorf("list id %q too long for snapshot", rec.ID)
		}
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(rec.ID)))
		if _, err := enc.Write(lenBuf[:]); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write record: %w", err)
		}
		if _, err := io.WriteString(enc, string(rec.ID)); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write record: %w", err)
		}
		if _, err := enc.Write(rec.Bitmap.Bytes()); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write record: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// Decode reads every record written by Encode.
func Decode(r io.Reader) ([]Record, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if header != magic {
		return nil, ErrBadFormat
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	var records []Record
	var lenBuf [2]byte
	raw := make([]byte, models.ByteLength)
	for {
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("%w: truncated record header", ErrBadFormat)
		}
		id := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
		if _, err := io.ReadFull(br, id); err != nil {
			return nil, fmt.Errorf("%w: truncated list id", ErrBadFormat)
		}
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, fmt.Errorf("%w: truncated bitmap for %q", ErrBadFormat, id)
		}
		listID, err := models.ParseListID(string(id))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		bitmap, err := models.BitmapFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		records = append(records, Record{ID: listID, Bitmap: bitmap})
	}
}
