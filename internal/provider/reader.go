package provider

import (
	"io"

	"github.com/jeffwilliams/hexcore/internal/region"
)

const DefaultReaderBufferSize = 1 << 20

// Reader reads a region of a Source through a large buffer so that byte-at-a-time scanning does not
// go to the provider for every byte. It reads forwards by default; SetReverse makes ReadByte walk
// from the end of the region towards its start.
type Reader struct {
	src     Source
	region  region.Region
	buf     []byte
	bufAddr uint64
	bufLen  int
	pos     uint64
	reverse bool
}

func NewReader(src Source, r region.Region, bufSize int) *Reader {
	if bufSize <= 0 {
		bufSize = DefaultReaderBufferSize
	}
	return &Reader{src: src, region: r, buf: make([]byte, bufSize), pos: r.Address}
}

func (r *Reader) Region() region.Region {
	return r.region
}

// SetReverse switches direction and moves to the corresponding end of the region.
func (r *Reader) SetReverse(reverse bool) {
	r.reverse = reverse
	if reverse {
		r.pos = r.region.End()
	} else {
		r.pos = r.region.Address
	}
}

// Seek moves to addr. In reverse mode the next ReadByte returns the byte before addr.
func (r *Reader) Seek(addr uint64) {
	r.pos = addr
}

func (r *Reader) Position() uint64 {
	return r.pos
}

func (r *Reader) cached(addr uint64, n int) bool {
	return r.bufLen > 0 && addr >= r.bufAddr && addr+uint64(n) <= r.bufAddr+uint64(r.bufLen)
}

func (r *Reader) fill(addr uint64) error {
	n := min(uint64(len(r.buf)), r.region.End()-addr)
	got, err := r.src.Read(addr, r.buf[:n])
	r.bufAddr, r.bufLen = addr, got
	if err != nil && got == 0 {
		return err
	}
	return nil
}

// Window returns up to n bytes starting at addr, clipped to the region. The slice aliases the
// reader's buffer and is valid until the next call.
func (r *Reader) Window(addr uint64, n int) ([]byte, error) {
	if addr >= r.region.End() || addr < r.region.Address {
		return nil, io.EOF
	}
	n = int(min(uint64(n), r.region.End()-addr))
	if n > len(r.buf) {
		r.buf = make([]byte, n)
		r.bufLen = 0
	}
	if !r.cached(addr, n) {
		if err := r.fill(addr); err != nil {
			return nil, err
		}
	}
	off := int(addr - r.bufAddr)
	return r.buf[off:min(off+n, r.bufLen)], nil
}

// ReadByte returns the next byte in the current direction, or io.EOF at the end of the region.
func (r *Reader) ReadByte() (byte, error) {
	if r.reverse {
		if r.pos <= r.region.Address {
			return 0, io.EOF
		}
		addr := r.pos - 1
		if !r.cached(addr, 1) {
			start := r.region.Address
			if addr+1-r.region.Address > uint64(len(r.buf)) {
				start = addr + 1 - uint64(len(r.buf))
			}
			if err := r.fill(start); err != nil {
				return 0, err
			}
			if !r.cached(addr, 1) {
				return 0, io.ErrUnexpectedEOF
			}
		}
		r.pos = addr
		return r.buf[addr-r.bufAddr], nil
	}

	if r.pos >= r.region.End() {
		return 0, io.EOF
	}
	if !r.cached(r.pos, 1) {
		if err := r.fill(r.pos); err != nil {
			return 0, err
		}
		if !r.cached(r.pos, 1) {
			return 0, io.ErrUnexpectedEOF
		}
	}
	b := r.buf[r.pos-r.bufAddr]
	r.pos++
	return b, nil
}

// Read implements io.Reader in the forward direction.
func (r *Reader) Read(p []byte) (int, error) {
	if r.pos >= r.region.End() {
		return 0, io.EOF
	}
	w, err := r.Window(r.pos, len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, w)
	r.pos += uint64(n)
	return n, nil
}
