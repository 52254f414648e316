package provider

import (
	"io"
	"strings"
)

// Capabilities describe what a backend's source supports.
type Capabilities uint8

const (
	Readable Capabilities = 1 << iota
	Writable
	Resizable
	Savable
)

func (c Capabilities) Has(o Capabilities) bool {
	return c&o == o
}

func (c Capabilities) String() string {
	var s []string
	for _, x := range []struct {
		c    Capabilities
		name string
	}{{Readable, "readable"}, {Writable, "writable"}, {Resizable, "resizable"}, {Savable, "savable"}} {
		if c.Has(x.c) {
			s = append(s, x.name)
		}
	}
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, "|")
}

// A Backend is the raw source of bytes behind a Provider: a file, a buffer, a remote file.
// Offsets passed to ReadAt and WriteAt are relative to the start of the source.
type Backend interface {
	io.ReaderAt
	io.WriterAt

	Open() error
	Close() error

	Size() uint64
	Capabilities() Capabilities

	TypeName() string
	Name() string
}

// A Truncater can change the size of its source. Backends that report Resizable implement it.
type Truncater interface {
	Truncate(size uint64) error
}

// A Flusher commits buffered writes to durable storage.
type Flusher interface {
	Flush() error
}

// A Configurable backend can persist the settings needed to reopen it.
type Configurable interface {
	MarshalConfig() ([]byte, error)
	UnmarshalConfig(data []byte) error
}
