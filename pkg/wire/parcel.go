package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned for any decode-time schema violation.
var ErrMalformedMessage = errors.New("malformed message")

// nullLength marks a null array or string.
const nullLength int32 = -1

// Writer appends little-endian primitives to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

func (w *Writer) WriteInt64(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

// WriteInt32Slice writes a length-prefixed array. A nil slice is written as null.
func (w *Writer) WriteInt32Slice(v []int32) {
	if v == nil {
		w.WriteInt32(nullLength)
		return
	}
	w.WriteInt32(int32(len(v)))
	for _, x := range v {
		w.WriteInt32(x)
	}
}

func (w *Writer) WriteString(s string) {
	w.WriteInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader consumes little-endian primitives from a buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps b for decoding.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if n < 0 || r.Remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedMessage, n, r.off, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadInt64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return int64(v), nil
}

// ReadInt32Slice reads a length-prefixed array. A null array decodes as nil.
func (r *Reader) ReadInt32Slice() ([]int32, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == nullLength {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative array length %d", ErrMalformedMessage, n)
	}
	if int64(n)*4 > int64(r.Remaining()) {
		return nil, fmt.Errorf("%w: array length %d exceeds remaining %d bytes", ErrMalformedMessage, n, r.Remaining())
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(r.buf[r.off:]))
		r.off += 4
	}
	return out, nil
}

// ReadString reads a length-prefixed string. A null string decodes as "".
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return "", err
	}
	if n == nullLength {
		return "", nil
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative string length %d", ErrMalformedMessage, n)
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

// Done fails if any bytes remain unread.
func (r *Reader) Done() error {
	if rem := r.Remaining(); rem != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedMessage, rem)
	}
	return nil
}
