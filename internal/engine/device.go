package engine

import (
	"fmt"
	"io"
)

// DeviceKind selects one of the engine's character devices.
type DeviceKind int

const (
	DeviceStdin DeviceKind = iota
	DeviceStdout
	DeviceStderr
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceStdin:
		return "stdin"
	case DeviceStdout:
		return "stdout"
	case DeviceStderr:
		return "stderr"
	}
	return fmt.Sprintf("device(%d)", int(k))
}

// DeviceID is the major/minor pair a device is registered under.
type DeviceID struct{ Major, Minor int }

func (id DeviceID) String() string { return fmt.Sprintf("%d:%d", id.Major, id.Minor) }

// ID returns the fixed device identifier for the kind. Output streams live
// at 5:0 (standard) and 6:0 (diagnostic).
func (k DeviceKind) ID() DeviceID {
	switch k {
	case DeviceStdout:
		return DeviceID{Major: 5, Minor: 0}
	case DeviceStderr:
		return DeviceID{Major: 6, Minor: 0}
	}
	return DeviceID{Major: 1, Minor: 3}
}

// Device is a character device the engine reads from or writes to one byte
// at a time.
type Device interface {
	// ReadByte serves an input request; io.EOF means no input.
	ReadByte() (byte, error)
	// WriteByte receives one output unit.
	WriteByte(c byte) error
	// Flush is called when the engine flushes the stream.
	Flush() error
	// Sync is called when the engine fsyncs the stream.
	Sync() error
}

type discard struct{}

func (discard) ReadByte() (byte, error) { return 0, io.EOF }
func (discard) WriteByte(byte) error    { return nil }
func (discard) Flush() error            { return nil }
func (discard) Sync() error             { return nil }

// Discard has no input and drops all output.
var Discard Device = discard{}

// Writer adapts a Device to io.Writer, feeding bytes one at a time.
func Writer(d Device) io.Writer { return deviceWriter{d} }

type deviceWriter struct{ d Device }

func (w deviceWriter) Write(p []byte) (int, error) {
	for i, c := range p {
		if err := w.d.WriteByte(c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Reader adapts a Device to io.Reader.
func Reader(d Device) io.Reader { return deviceReader{d} }

type deviceReader struct{ d Device }

func (r deviceReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) {
		c, err := r.d.ReadByte()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}
		p[n] = c
		n++
	}
	return n, nil
}
