package provider

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	TypeFile = "hexcore.provider.file"
	TypeDisk = "hexcore.provider.disk"
)

// File is a backend over a local file. If the file cannot be opened for writing it is opened
// read-only and reports only the Readable capability.
type File struct {
	path     string
	readOnly bool
	disk     bool

	f    *os.File
	size uint64
}

func NewFile(path string, readOnly bool) *File {
	return &File{path: path, readOnly: readOnly}
}

// NewDisk opens a raw block device or disk image read-only. Its size is found by seeking to the
// end, since stat reports zero for most devices.
func NewDisk(path string) *File {
	return &File{path: path, readOnly: true, disk: true}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Open() (err error) {
	if !f.readOnly {
		f.f, err = os.OpenFile(f.path, os.O_RDWR, 0)
		if errors.Is(err, fs.ErrPermission) {
			dbg("%s is not writable, opening read-only", f.path)
			f.readOnly = true
		} else if err != nil {
			return err
		}
	}
	if f.readOnly {
		f.f, err = os.Open(f.path)
		if err != nil {
			return err
		}
	}

	end, err := f.f.Seek(0, io.SeekEnd)
	if err != nil {
		f.f.Close()
		return err
	}
	f.size = uint64(end)
	return nil
}

func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

func (f *File) Size() uint64 {
	return f.size
}

func (f *File) Capabilities() Capabilities {
	if f.readOnly {
		return Readable
	}
	return Readable | Writable | Resizable | Savable
}

func (f *File) TypeName() string {
	if f.disk {
		return TypeDisk
	}
	return TypeFile
}

func (f *File) Name() string {
	return filepath.Base(f.path)
}

func (f *File) ReadAt(b []byte, off int64) (int, error) {
	if f.f == nil {
		return 0, ErrNotOpen
	}
	return f.f.ReadAt(b, off)
}

func (f *File) WriteAt(b []byte, off int64) (int, error) {
	if f.f == nil {
		return 0, ErrNotOpen
	}
	n, err := f.f.WriteAt(b, off)
	if end := uint64(off) + uint64(n); end > f.size {
		f.size = end
	}
	return n, err
}

func (f *File) Truncate(size uint64) error {
	if f.f == nil {
		return ErrNotOpen
	}
	err := f.f.Truncate(int64(size))
	if err != nil {
		return err
	}
	f.size = size
	return nil
}

func (f *File) Flush() error {
	if f.f == nil {
		return ErrNotOpen
	}
	return f.f.Sync()
}

type fileConfig struct {
	Path     string `json:"path"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

func (f *File) MarshalConfig() ([]byte, error) {
	return json.Marshal(fileConfig{Path: f.path, ReadOnly: f.readOnly && !f.disk})
}

func (f *File) UnmarshalConfig(data []byte) error {
	var c fileConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	f.path = c.Path
	f.readOnly = c.ReadOnly || f.disk
	return nil
}
