// Package stream provides the binary streams usage snapshots travel on.
//
// Both ends of a stream carry the transport version negotiated with the peer, so
// encoders and decoders can decide which optional fields are present on the wire.
// Integers are written as little-endian base-128 varints (7 bits per byte, high
// bit set on every byte but the last), booleans as a single 0 or 1 byte and
// strings as a varint byte length followed by UTF-8 bytes.
package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/ssargent/dsusage/pkg/transport"
)

// ErrMalformedStream is returned when a stream ends early or holds bytes that are
// not a valid encoding
var ErrMalformedStream = errors.New("malformed stream")

// MaxStringLength bounds the byte length accepted by ReadString
const MaxStringLength = 1 << 20

// maxVIntLen is the longest varint that can hold a uint32
const maxVIntLen = 5

// Writer writes primitive values to an underlying io.Writer
type Writer struct {
	w       io.Writer
	version transport.Version
	scratch [binary.MaxVarintLen64]byte
}

// NewWriter creates a writer that encodes for the given transport version
func NewWriter(w io.Writer, version transport.Version) *Writer {
	return &Writer{w: w, version: version}
}

// Version returns the transport version of the peer this stream is written for
func (w *Writer) Version() transport.Version {
	return w.version
}

// WriteVLong writes an unsigned varint
func (w *Writer) WriteVLong(v uint64) error {
	n := binary.PutUvarint(w.scratch[:], v)
	return w.write(w.scratch[:n])
}

// WriteVInt writes an unsigned varint that readers decode with ReadVInt
func (w *Writer) WriteVInt(v uint32) error {
	return w.WriteVLong(uint64(v))
}

// WriteBool writes a single 0 or 1 byte
func (w *Writer) WriteBool(b bool) error {
	w.scratch[0] = 0
	if b {
		w.scratch[0] = 1
	}
	return w.write(w.scratch[:1])
}

// WriteString writes a length prefixed UTF-8 string
func (w *Writer) WriteString(s string) error {
	if len(s) > MaxStringLength {
		return fmt.Errorf("string too long: %d > %d bytes", len(s), MaxStringLength)
	}
	if err := w.WriteVInt(uint32(len(s))); err != nil {
		return err
	}
	return w.write([]byte(s))
}

func (w *Writer) write(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return fmt.Errorf("failed to write stream: %w", err)
	}
	return nil
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

// Reader reads primitive values from an underlying io.Reader.
// Sources that are not io.ByteReaders are buffered, so a Reader must be the only
// consumer of its source.
type Reader struct {
	r       byteReader
	version transport.Version
}

// NewReader creates a reader that decodes data written for the given transport version
func NewReader(r io.Reader, version transport.Version) *Reader {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br, version: version}
}

// Version returns the transport version the stream was written with
func (r *Reader) Version() transport.Version {
	return r.version
}

// ReadVLong reads an unsigned varint of up to 10 bytes
func (r *Reader) ReadVLong() (uint64, error) {
	return r.readUvarint("vlong", binary.MaxVarintLen64, 0x01)
}

// ReadVInt reads an unsigned varint that must fit in 32 bits
func (r *Reader) ReadVInt() (uint32, error) {
	v, err := r.readUvarint("vint", maxVIntLen, 0x0f)
	return uint32(v), err
}

// readUvarint decodes at most maxLen bytes. The final byte may not exceed
// lastMax, otherwise the value would not fit the target width.
func (r *Reader) readUvarint(what string, maxLen int, lastMax byte) (uint64, error) {
	var v uint64
	for i := 0; i < maxLen; i++ {
		b, err := r.r.ReadByte()
		if err != nil {
			return 0, r.wrap(what, err)
		}
		if i == maxLen-1 && b > lastMax {
			return 0, fmt.Errorf("%w: %s overflows %d bytes", ErrMalformedStream, what, maxLen)
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %s longer than %d bytes", ErrMalformedStream, what, maxLen)
}

// ReadBool reads a single byte that must be 0 or 1
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return false, r.wrap("bool", err)
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: unexpected boolean byte 0x%02x", ErrMalformedStream, b)
	}
}

// ReadString reads a length prefixed UTF-8 string
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVInt()
	if err != nil {
		return "", err
	}
	if n > MaxStringLength {
		return "", fmt.Errorf("%w: string length %d exceeds %d", ErrMalformedStream, n, MaxStringLength)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", r.wrap("string", err)
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrMalformedStream)
	}
	return string(buf), nil
}

// ExpectEOF returns an error unless the stream has been fully consumed
func (r *Reader) ExpectEOF() error {
	_, err := r.r.ReadByte()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read stream: %w", err)
	default:
		return fmt.Errorf("%w: trailing bytes after payload", ErrMalformedStream)
	}
}

// wrap classifies a read error: running out of input means the payload is
// truncated, anything else comes from the transport and is passed through.
func (r *Reader) wrap(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated %s: %w", ErrMalformedStream, what, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}
