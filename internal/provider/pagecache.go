package provider

import (
	"errors"
	"io"
	"sync"

	"github.com/jeffwilliams/hexcore/internal/cache"
)

const (
	DefaultCachePageSize = 64 * 1024
	DefaultCachePages    = 16
)

// pageCache keeps recently read pages of the raw source. Pages are a power of two in size and
// evicted least recently used first.
type pageCache struct {
	lock     sync.Mutex
	pages    cache.Cache[uint64, []byte]
	pageSize uint64
	shift    uint
	src      io.ReaderAt

	hits, misses uint64
}

func newPageCache(src io.ReaderAt, pageSize uint64, count int) *pageCache {
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		pageSize = DefaultCachePageSize
	}
	if count < 1 {
		count = DefaultCachePages
	}

	var shift uint
	for uint64(1)<<shift < pageSize {
		shift++
	}

	return &pageCache{
		pages:    cache.New[uint64, []byte](count),
		pageSize: pageSize,
		shift:    shift,
		src:      src,
	}
}

// read fills buf from [off, off+len(buf)) of a source holding size bytes. The caller guarantees the
// range lies within size. It returns how many leading bytes of buf were filled.
func (c *pageCache) read(off uint64, buf []byte, size uint64) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	done := 0
	for done < len(buf) {
		a := off + uint64(done)
		index := a >> c.shift
		page, err := c.page(index, size)
		if err != nil {
			return done, err
		}

		inPage := a - index<<c.shift
		if inPage >= uint64(len(page)) {
			return done, io.ErrUnexpectedEOF
		}
		done += copy(buf[done:], page[inPage:])
	}
	return done, nil
}

func (c *pageCache) page(index, size uint64) ([]byte, error) {
	if e := c.pages.Get(index); e != nil {
		c.hits++
		return e.Val, nil
	}
	c.misses++

	start := index << c.shift
	n := min(c.pageSize, size-start)
	page := make([]byte, n)
	got, err := c.src.ReadAt(page, int64(start))
	if err != nil && !(errors.Is(err, io.EOF) && uint64(got) == n) {
		return nil, err
	}

	c.pages.Set(index, page)
	return page, nil
}

// invalidate drops every cached page overlapping [off, off+n).
func (c *pageCache) invalidate(off, n uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if n == 0 {
		return
	}
	for index := off >> c.shift; index <= (off+n-1)>>c.shift; index++ {
		c.pages.Del(index)
	}
}

func (c *pageCache) clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pages.Clear()
}

func (c *pageCache) stats() (hits, misses uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.hits, c.misses
}
