package wire

import (
	"errors"
	"io"
)

var errDataWriterClosed = errors.New("smtp: data writer closed")

// DataWriter encodes a message body for the SMTP DATA phase: bare LF
// line endings are rewritten to CRLF, a '.' at the start of a line is
// doubled, and Close emits the ".\r\n" terminator on a fresh line. The
// underlying writer is never closed.
type DataWriter struct {
	w      io.Writer
	last   byte // last byte emitted, 0 before any output
	in     int64
	out    int64
	closed bool
}

// NewDataWriter returns a DataWriter encoding onto w.
func NewDataWriter(w io.Writer) *DataWriter {
	return &DataWriter{w: w}
}

// Write encodes p onto the underlying writer. It always consumes all of
// p unless the underlying writer fails.
func (d *DataWriter) Write(p []byte) (int, error) {
	if d.closed {
		return 0, errDataWriterClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	// Worst case every byte grows to two (LF → CRLF, '.' → "..").
	buf := make([]byte, 0, len(p)+len(p)/4+4)
	for _, b := range p {
		switch b {
		case '\n':
			if d.last != '\r' {
				buf = append(buf, '\r')
			}
			buf = append(buf, '\n')
		case '.':
			if d.last == '\n' || d.last == 0 {
				buf = append(buf, '.')
			}
			buf = append(buf, '.')
		default:
			buf = append(buf, b)
		}
		d.last = b
	}
	d.in += int64(len(p))
	d.out += int64(len(buf))

	if _, err := d.w.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close emits the end-of-data terminator. If the body did not end with
// a line break, one is supplied first so the terminating dot sits on
// its own line. Close does not close the underlying writer.
func (d *DataWriter) Close() error {
	if d.closed {
		return errDataWriterClosed
	}
	d.closed = true

	term := "\r\n.\r\n"
	if d.last == '\n' {
		term = ".\r\n"
	}
	d.out += int64(len(term))
	_, err := io.WriteString(d.w, term)
	return err
}

// In returns the number of body bytes accepted by Write.
func (d *DataWriter) In() int64 { return d.in }

// Out returns the number of encoded bytes emitted, terminator included.
func (d *DataWriter) Out() int64 { return d.out }
