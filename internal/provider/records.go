package provider

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeffwilliams/hexcore/internal/intvl"
)

const (
	TypeIntelHex     = "hexcore.provider.intel_hex"
	TypeMotorolaSrec = "hexcore.provider.motorola_srec"
)

// Image is a sparse memory image: chunks of data at arbitrary addresses with unmapped gaps between
// them. Gaps read as zero.
type Image struct {
	chunks intvl.Tree[[]byte]
	end    uint64
}

// Add places data at addr. Where chunks overlap, the one starting later wins.
func (m *Image) Add(addr uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	m.chunks.Insert(intvl.Span{From: addr, To: addr + uint64(len(data))}, data)
	m.end = max(m.end, addr+uint64(len(data)))
}

func (m *Image) Size() uint64 {
	return m.end
}

// Chunks returns the mapped chunks ordered by address.
func (m *Image) Chunks() []intvl.Entry[[]byte] {
	return m.chunks.Entries()
}

func (m *Image) ReadAt(b []byte, off int64) (int, error) {
	start := uint64(off)
	if start >= m.end {
		return 0, io.EOF
	}
	n := min(uint64(len(b)), m.end-start)
	clear(b[:n])
	m.chunks.EachOverlapping(intvl.Span{From: start, To: start + n}, func(e intvl.Entry[[]byte]) bool {
		from := max(e.From, start)
		to := min(e.To, start+n)
		copy(b[from-start:to-start], e.Value[from-e.From:to-e.From])
		return true
	})
	if n < uint64(len(b)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// RecordError reports a malformed line in a record file.
type RecordError struct {
	Line   int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func decodeRecord(line string, lineNo int) ([]byte, error) {
	b, err := hex.DecodeString(line)
	if err != nil {
		return nil, &RecordError{lineNo, "invalid hex digits"}
	}
	return b, nil
}

// ParseIntelHex reads an Intel HEX file into an image.
func ParseIntelHex(r io.Reader) (*Image, error) {
	var (
		img    Image
		base   uint64
		lineNo int
	)

	s := bufio.NewScanner(r)
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if line[0] != ':' {
			return nil, &RecordError{lineNo, "record does not start with ':'"}
		}
		rec, err := decodeRecord(line[1:], lineNo)
		if err != nil {
			return nil, err
		}
		if len(rec) < 5 || len(rec) != int(rec[0])+5 {
			return nil, &RecordError{lineNo, "record length mismatch"}
		}

		var sum byte
		for _, x := range rec {
			sum += x
		}
		if sum != 0 {
			return nil, &RecordError{lineNo, "checksum mismatch"}
		}

		addr := uint64(rec[1])<<8 | uint64(rec[2])
		data := rec[4 : len(rec)-1]
		switch rec[3] {
		case 0x00:
			img.Add(base+addr, data)
		case 0x01:
			return &img, nil
		case 0x02:
			if len(data) != 2 {
				return nil, &RecordError{lineNo, "bad extended segment address record"}
			}
			base = (uint64(data[0])<<8 | uint64(data[1])) << 4
		case 0x04:
			if len(data) != 2 {
				return nil, &RecordError{lineNo, "bad extended linear address record"}
			}
			base = (uint64(data[0])<<8 | uint64(data[1])) << 16
		case 0x03, 0x05:
			// Start addresses don't map any data.
		default:
			return nil, &RecordError{lineNo, fmt.Sprintf("unknown record type %02x", rec[3])}
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return &img, nil
}

// ParseSrec reads a Motorola S-record file into an image.
func ParseSrec(r io.Reader) (*Image, error) {
	var (
		img    Image
		lineNo int
	)

	s := bufio.NewScanner(r)
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if len(line) < 4 || line[0] != 'S' {
			return nil, &RecordError{lineNo, "record does not start with 'S'"}
		}
		kind := line[1]
		rec, err := decodeRecord(line[2:], lineNo)
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 || len(rec) != int(rec[0])+1 {
			return nil, &RecordError{lineNo, "record length mismatch"}
		}

		var sum byte
		for _, x := range rec {
			sum += x
		}
		if sum != 0xFF {
			return nil, &RecordError{lineNo, "checksum mismatch"}
		}

		var addrLen int
		switch kind {
		case '0', '1', '5', '9':
			addrLen = 2
		case '2', '6', '8':
			addrLen = 3
		case '3', '7':
			addrLen = 4
		default:
			return nil, &RecordError{lineNo, fmt.Sprintf("unknown record type S%c", kind)}
		}
		if len(rec) < 2+addrLen {
			return nil, &RecordError{lineNo, "record too short for its address"}
		}

		var addr uint64
		for _, x := range rec[1 : 1+addrLen] {
			addr = addr<<8 | uint64(x)
		}
		data := rec[1+addrLen : len(rec)-1]

		switch kind {
		case '1', '2', '3':
			img.Add(addr, data)
		case '7', '8', '9':
			return &img, nil
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return &img, nil
}

// Records is a read-only backend over an Intel HEX or Motorola S-record file.
type Records struct {
	path     string
	typeName string
	img      *Image
}

func NewIntelHex(path string) *Records {
	return &Records{path: path, typeName: TypeIntelHex}
}

func NewSrec(path string) *Records {
	return &Records{path: path, typeName: TypeMotorolaSrec}
}

func (r *Records) Open() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	parse := ParseIntelHex
	if r.typeName == TypeMotorolaSrec {
		parse = ParseSrec
	}
	r.img, err = parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", r.path, err)
	}
	dbg("loaded %s: %d chunks, %d bytes", r.path, r.img.chunks.Len(), r.img.Size())
	return nil
}

func (r *Records) Close() error {
	r.img = nil
	return nil
}

func (r *Records) Image() *Image {
	return r.img
}

func (r *Records) Size() uint64 {
	if r.img == nil {
		return 0
	}
	return r.img.Size()
}

func (r *Records) Capabilities() Capabilities { return Readable }
func (r *Records) TypeName() string           { return r.typeName }
func (r *Records) Name() string               { return filepath.Base(r.path) }

func (r *Records) ReadAt(b []byte, off int64) (int, error) {
	if r.img == nil {
		return 0, ErrNotOpen
	}
	return r.img.ReadAt(b, off)
}

func (r *Records) WriteAt(b []byte, off int64) (int, error) {
	return 0, ErrUnwritable
}

func (r *Records) MarshalConfig() ([]byte, error) {
	return json.Marshal(fileConfig{Path: r.path})
}

func (r *Records) UnmarshalConfig(data []byte) error {
	var c fileConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	r.path = c.Path
	return nil
}
