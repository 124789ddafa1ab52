package codec

import (
	"bufio"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// maxLineSize bounds a single packet line to guard against an unbounded
// read on a misbehaving or hostile peer.
const maxLineSize = 1 << 20 // 1 MiB

// Reader parses Packets off a newline-delimited byte stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r for packet-at-a-time reads.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	return &Reader{scanner: scanner}
}

// ReadPacket reads and decodes the next line. It returns io.EOF when the
// peer has closed the stream cleanly.
func (r *Reader) ReadPacket() (*Packet, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	line := r.scanner.Bytes()
	if len(line) == 0 {
		return nil, errors.Wrap(ErrMalformedPacket, "empty line")
	}
	return Decode(line)
}

// Writer serializes Packets onto a byte sink, appending a newline and
// draining the write before returning, as the single owner of the
// connection's outbound byte stream.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w for packet-at-a-time writes.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WritePacket encodes and writes p, followed by a newline. Writes for a
// single connection are serialized so that a packet is never interleaved
// with another mid-frame.
func (w *Writer) WritePacket(p *Packet) error {
	data, err := Encode(p)
	if err != nil {
		return errors.Wrap(err, "codec: encode packet")
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(data)
	return err
}
