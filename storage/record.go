package storage

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/nicolagi/emoji/bits"
)

const recordVersion = 1

// ErrBadRecord is returned when an index value cannot be decoded.
var ErrBadRecord = errors.New("bad record")

// encodeRecord lays out an entry as a version byte, the extension (16-bit
// length prefix) and the hex-encoded data (32-bit length prefix).
func encodeRecord(e Entry) ([]byte, error) {
	if len(e.Extension) > 0xffff {
		return nil, fmt.Errorf("extension of %d bytes: %w", len(e.Extension), ErrBadRecord)
	}
	data := hex.EncodeToString(e.Data)
	buf := make([]byte, 1+2+len(e.Extension)+4+len(data))
	b := bits.Put8(buf, recordVersion)
	b = bits.Puts(b, e.Extension)
	bits.PutLongs(b, data)
	return buf, nil
}

// decodeRecord never retains b.
func decodeRecord(b []byte) (e Entry, err error) {
	if len(b) < 3 {
		return e, fmt.Errorf("record of %d bytes: %w", len(b), ErrBadRecord)
	}
	var version uint8
	version, b = bits.Get8(b)
	if version != recordVersion {
		return e, fmt.Errorf("record version %d: %w", version, ErrBadRecord)
	}
	if n, _ := bits.Get16(b); len(b) < 2+int(n)+4 {
		return e, fmt.Errorf("truncated extension: %w", ErrBadRecord)
	}
	e.Extension, b = bits.Gets(b)
	if n, _ := bits.Get32(b); uint64(len(b)) < 4+uint64(n) {
		return e, fmt.Errorf("truncated data: %w", ErrBadRecord)
	}
	var data string
	data, _ = bits.GetLongs(b)
	e.Data, err = hex.DecodeString(data)
	if err != nil {
		return Entry{}, fmt.Errorf("%v: %w", err, ErrBadRecord)
	}
	return e, nil
}
