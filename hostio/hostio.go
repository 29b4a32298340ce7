// Package hostio implements vm.HostIO against the process's standard
// streams, the way the run subcommand wires a VM to its terminal: one
// buffered reader for SYSFN 1, one buffered, explicitly-flushed writer for
// SYSFN 2.
package hostio

import (
	"bufio"
	"io"
)

// Stdio is a vm.HostIO backed by a pair of byte streams. Read returns
// 0xFFFFFFFF once the underlying reader is exhausted, matching the
// reference VM's end-of-input sentinel; Write flushes after every byte so
// output interleaves correctly with anything else sharing the stream.
type Stdio struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewStdio wraps r and w as a HostIO. Callers typically pass os.Stdin and
// os.Stdout.
func NewStdio(r io.Reader, w io.Writer) *Stdio {
	return &Stdio{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

// Read pulls one byte from the input stream, widened to u32, or
// 0xFFFFFFFF at EOF or on any read error.
func (s *Stdio) Read() uint32 {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0xFFFFFFFF
	}
	return uint32(b)
}

// Write pushes the low byte of value to the output stream and flushes
// immediately.
func (s *Stdio) Write(value uint32) {
	_ = s.w.WriteByte(byte(value))
	_ = s.w.Flush()
}
