package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jeffwilliams/hexcore/internal/region"
)

// Options control how a Provider caches and addresses its source.
type Options struct {
	// CachePageSize is the size of one page of the raw read cache. It must be a power of two.
	CachePageSize uint64
	// CachePages is how many pages the raw read cache holds.
	CachePages int
	// RelativeAddressing makes addresses passed to the provider offsets from the start of the
	// source instead of absolute addresses that include the base address.
	RelativeAddressing bool
	// PageSize splits the provider into pages for display. Zero means a single page.
	PageSize uint64
}

var DefaultOptions = Options{
	CachePageSize: DefaultCachePageSize,
	CachePages:    DefaultCachePages,
}

var nextID atomic.Uint64

// A Provider is a uniform, byte addressable view of a Backend. Writes go to an in-memory overlay
// and are recorded in undo groups; Save commits the overlay to the backend.
//
// Reads may happen concurrently with each other. A write excludes all other access for its
// duration, but callers must serialise writers to get a meaningful order.
type Provider struct {
	backend Backend
	id      uint64
	opts    Options

	lock        sync.RWMutex
	open        bool
	overlay     overlay
	extent      extent
	dirty       bool
	undo        groupStack
	redo        groupStack
	group       *undoGroup
	groupDepth  int
	pages       *pageCache
	baseAddress uint64
	currentPage uint64

	listenerLock sync.Mutex
	listeners    map[int]func(r region.Region)
	nextListener int
}

func New(b Backend, opts Options) *Provider {
	return &Provider{
		backend:   b,
		id:        nextID.Add(1),
		opts:      opts,
		listeners: map[int]func(r region.Region){},
	}
}

// ID is unique among all providers created by this process.
func (p *Provider) ID() uint64 {
	return p.id
}

func (p *Provider) Backend() Backend {
	return p.backend
}

func (p *Provider) Name() string {
	return p.backend.Name()
}

func (p *Provider) TypeName() string {
	return p.backend.TypeName()
}

func (p *Provider) Capabilities() Capabilities {
	return p.backend.Capabilities()
}

func (p *Provider) Open() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.open {
		return nil
	}

	err := p.backend.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", p.backend.Name(), err)
	}

	size := p.backend.Size()
	p.extent = extent{size: size, visible: size}
	p.pages = newPageCache(p.backend, p.opts.CachePageSize, p.opts.CachePages)
	p.open = true
	p.dirty = false
	dbg("opened provider %d (%s) of %d bytes", p.id, p.backend.Name(), size)
	return nil
}

func (p *Provider) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.open {
		return nil
	}
	p.open = false
	p.pages = nil
	dbg("closed provider %d (%s)", p.id, p.backend.Name())
	return p.backend.Close()
}

func (p *Provider) IsOpen() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.open
}

func (p *Provider) Dirty() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.dirty
}

// ActualSize is the logical size of the provider, including any extension made by writes.
func (p *Provider) ActualSize() uint64 {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.extent.size
}

func (p *Provider) BaseAddress() uint64 {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.baseAddress
}

func (p *Provider) SetBaseAddress(a uint64) {
	p.lock.Lock()
	p.baseAddress = a
	p.lock.Unlock()
	p.notify(region.Region{Address: 0, Size: p.ActualSize()})
}

// Region returns the range of addresses that Read accepts.
func (p *Provider) Region() region.Region {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return region.Region{Address: p.addressOf(0), Size: p.extent.size}
}

func (p *Provider) addressOf(off uint64) uint64 {
	if p.opts.RelativeAddressing {
		return off
	}
	return p.baseAddress + off
}

// offset translates an address into an offset into the source.
func (p *Provider) offset(addr uint64) (uint64, error) {
	if p.opts.RelativeAddressing {
		return addr, nil
	}
	if addr < p.baseAddress {
		return 0, fmt.Errorf("%w: address %#x is below the base address %#x", ErrOutOfBounds, addr, p.baseAddress)
	}
	return addr - p.baseAddress, nil
}

func (p *Provider) checkOpen() error {
	if !p.open {
		return fmt.Errorf("%s: %w", p.backend.Name(), ErrNotOpen)
	}
	return nil
}

// Read fills buf with the bytes at addr as seen through the overlay. If the read runs past the end
// of the provider or the source fails, the bytes before the failure are filled and counted in n and
// the rest of buf is left untouched.
func (p *Provider) Read(addr uint64, buf []byte) (n int, err error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if err = p.checkReadable(); err != nil {
		return
	}
	off, err := p.offset(addr)
	if err != nil {
		return
	}
	return p.readLocked(off, buf)
}

func (p *Provider) checkReadable() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if !p.backend.Capabilities().Has(Readable) {
		return fmt.Errorf("%s: %w", p.backend.Name(), ErrUnreadable)
	}
	return nil
}

func (p *Provider) readLocked(off uint64, buf []byte) (n int, err error) {
	avail := len(buf)
	if off >= p.extent.size {
		avail = 0
	} else if rest := p.extent.size - off; rest < uint64(avail) {
		avail = int(rest)
	}

	n = avail
	rawEnd := min(off+uint64(avail), p.extent.visible)
	if off < rawEnd {
		got, rerr := p.pages.read(off, buf[:rawEnd-off], p.backend.Size())
		if rerr != nil {
			n = got
			err = wrapIo(fmt.Sprintf("read at offset %#x", off+uint64(got)), rerr)
		}
	}
	if err == nil {
		start := 0
		if rawEnd > off {
			start = int(rawEnd - off)
		}
		clear(buf[start:avail])
	}
	p.overlay.apply(off, buf[:n])

	if err == nil && n < len(buf) {
		err = fmt.Errorf("%w: read of %d bytes at %#x exceeds size %d", ErrOutOfBounds, len(buf), p.addressOf(off), p.extent.size)
	}
	return
}

// ReadRaw reads the source directly, ignoring the overlay.
func (p *Provider) ReadRaw(addr uint64, buf []byte) (n int, err error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if err = p.checkReadable(); err != nil {
		return
	}
	off, err := p.offset(addr)
	if err != nil {
		return
	}

	size := p.backend.Size()
	avail := len(buf)
	if off >= size {
		avail = 0
	} else if rest := size - off; rest < uint64(avail) {
		avail = int(rest)
	}

	n = avail
	if avail > 0 {
		got, rerr := p.pages.read(off, buf[:avail], size)
		if rerr != nil {
			return got, wrapIo(fmt.Sprintf("raw read at offset %#x", off+uint64(got)), rerr)
		}
	}
	if n < len(buf) {
		err = fmt.Errorf("%w: raw read of %d bytes at %#x exceeds source size %d", ErrOutOfBounds, len(buf), addr, size)
	}
	return
}

// Write records data at addr in the overlay. If no undo group is open the write forms a group of
// its own. A write past the end grows a resizable provider and fails on any other.
func (p *Provider) Write(addr uint64, data []byte) error {
	r, err := p.write(addr, data)
	if err != nil {
		return err
	}
	p.notify(r)
	return nil
}

func (p *Provider) write(addr uint64, data []byte) (region.Region, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	off, err := p.offsetForWrite(addr)
	if err != nil {
		return region.Region{}, err
	}
	err = p.writeLocked(off, data)
	return region.Region{Address: p.addressOf(off), Size: uint64(len(data))}, err
}

func (p *Provider) offsetForWrite(addr uint64) (uint64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	if !p.backend.Capabilities().Has(Writable) {
		return 0, fmt.Errorf("%s: %w", p.backend.Name(), ErrUnwritable)
	}
	return p.offset(addr)
}

func (p *Provider) writeLocked(off uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	end := off + uint64(len(data))
	if end < off {
		return fmt.Errorf("%w: write of %d bytes at offset %#x wraps around", ErrOutOfBounds, len(data), off)
	}
	if end > p.extent.size && !p.backend.Capabilities().Has(Resizable) {
		return fmt.Errorf("%w: write of %d bytes at %#x exceeds size %d", ErrOutOfBounds, len(data), p.addressOf(off), p.extent.size)
	}

	p.beginLocked("write")
	g := p.group
	g.changes = append(g.changes, change{
		offset: off,
		before: p.overlay.snapshot(off, uint64(len(data))),
		after:  fullSnapshot(data),
	})
	p.overlay.set(off, data)
	if end > p.extent.size {
		p.extent.size = end
	}
	p.dirty = true
	p.endLocked()
	return nil
}

// WriteRaw writes data straight to the source, bypassing the overlay and the undo history.
func (p *Provider) WriteRaw(addr uint64, data []byte) error {
	p.lock.Lock()

	off, err := p.offsetForWrite(addr)
	if err != nil {
		p.lock.Unlock()
		return err
	}
	if off+uint64(len(data)) > p.backend.Size() && !p.backend.Capabilities().Has(Resizable) {
		p.lock.Unlock()
		return fmt.Errorf("%w: raw write of %d bytes at %#x exceeds source size %d", ErrOutOfBounds, len(data), addr, p.backend.Size())
	}

	before := p.backend.Size()
	_, err = p.backend.WriteAt(data, int64(off))
	if s := p.backend.Size(); s != before {
		p.pages.clear()
		if p.extent.visible == p.extent.size && s > p.extent.size {
			p.extent = extent{size: s, visible: s}
		}
	} else {
		p.pages.invalidate(off, uint64(len(data)))
	}
	if err != nil {
		p.lock.Unlock()
		return wrapIo("raw write", err)
	}
	p.dirty = true
	p.lock.Unlock()

	p.notify(region.Region{Address: addr, Size: uint64(len(data))})
	return nil
}

// Resize changes the logical size. Overlay bytes past a new, smaller end are dropped and raw bytes
// there are hidden; both come back on Undo.
func (p *Provider) Resize(size uint64) error {
	p.lock.Lock()
	old := p.extent.size
	err := p.resizeLocked(size)
	r := region.FromBounds(p.addressOf(min(old, size)), p.addressOf(max(old, size)))
	p.lock.Unlock()
	if err != nil {
		return err
	}
	p.notify(r)
	return nil
}

func (p *Provider) resizeLocked(size uint64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if !p.backend.Capabilities().Has(Resizable) {
		return fmt.Errorf("%s: %w", p.backend.Name(), ErrUnresizable)
	}
	if size == p.extent.size {
		return nil
	}

	p.beginLocked("resize")
	if size < p.extent.size && len(p.overlay.runs) > 0 {
		last := p.overlay.runs[len(p.overlay.runs)-1].end()
		if last > size {
			n := last - size
			p.group.changes = append(p.group.changes, change{
				offset: size,
				before: p.overlay.snapshot(size, n),
				after:  snapshot{data: make([]byte, n), present: make([]bool, n)},
			})
			p.overlay.remove(size, n)
		}
	}
	p.extent.size = size
	p.extent.visible = min(p.extent.visible, size)
	p.dirty = true
	p.endLocked()
	return nil
}

const moveChunk = 1 << 20

// Insert opens a gap of n zero bytes at addr, moving everything after it towards the end.
func (p *Provider) Insert(addr, n uint64) error {
	return p.Group(context.Background(), "insert", func() error {
		p.lock.Lock()
		defer p.lock.Unlock()

		off, err := p.offsetForWrite(addr)
		if err != nil {
			return err
		}
		if off > p.extent.size {
			return fmt.Errorf("%w: insert at %#x is past the end", ErrOutOfBounds, addr)
		}
		size := p.extent.size
		if err = p.resizeLocked(size + n); err != nil {
			return err
		}

		buf := make([]byte, min(moveChunk, size-off))
		for end := size; end > off; {
			start := max(off, end-uint64(len(buf)))
			chunk := buf[:end-start]
			if _, err = p.readLocked(start, chunk); err != nil {
				return err
			}
			if err = p.writeLocked(start+n, chunk); err != nil {
				return err
			}
			end = start
		}
		return p.fillLocked(off, n, []byte{0})
	})
}

// Remove deletes n bytes at addr, moving everything after them towards the start.
func (p *Provider) Remove(addr, n uint64) error {
	return p.Group(context.Background(), "remove", func() error {
		p.lock.Lock()
		defer p.lock.Unlock()

		off, err := p.offsetForWrite(addr)
		if err != nil {
			return err
		}
		size := p.extent.size
		if off > size || n > size-off {
			return fmt.Errorf("%w: removing %d bytes at %#x exceeds size %d", ErrOutOfBounds, n, addr, size)
		}
		if !p.backend.Capabilities().Has(Resizable) {
			return fmt.Errorf("%s: %w", p.backend.Name(), ErrUnresizable)
		}

		buf := make([]byte, min(moveChunk, size-off-n))
		for start := off + n; start < size; {
			end := min(size, start+uint64(len(buf)))
			chunk := buf[:end-start]
			if _, err = p.readLocked(start, chunk); err != nil {
				return err
			}
			if err = p.writeLocked(start-n, chunk); err != nil {
				return err
			}
			start = end
		}
		return p.resizeLocked(size - n)
	})
}

// Fill writes pattern repeatedly over r. The last repetition is cut at the end of r.
func (p *Provider) Fill(r region.Region, pattern []byte) error {
	if len(pattern) == 0 {
		return nil
	}
	return p.Group(context.Background(), "fill", func() error {
		p.lock.Lock()
		defer p.lock.Unlock()

		off, err := p.offsetForWrite(r.Address)
		if err != nil {
			return err
		}
		return p.fillLocked(off, r.Size, pattern)
	})
}

func (p *Provider) fillLocked(off, n uint64, pattern []byte) error {
	if n == 0 {
		return nil
	}
	size := min(n, moveChunk)
	size -= size % uint64(len(pattern))
	if size == 0 {
		size = uint64(len(pattern))
	}
	buf := make([]byte, size)
	for i := 0; i < len(buf); i += len(pattern) {
		copy(buf[i:], pattern)
	}

	for done := uint64(0); done < n; {
		chunk := buf[:min(uint64(len(buf)), n-done)]
		if err := p.writeLocked(off+done, chunk); err != nil {
			return err
		}
		done += uint64(len(chunk))
	}
	return nil
}

// Save commits the overlay and any size change to the source. The undo history is cleared.
func (p *Provider) Save() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkOpen(); err != nil {
		return err
	}
	if !p.backend.Capabilities().Has(Savable) {
		return fmt.Errorf("%s: %w", p.backend.Name(), ErrUnsavable)
	}

	if p.extent.visible < p.backend.Size() || p.extent.size != p.backend.Size() {
		t, ok := p.backend.(Truncater)
		if !ok {
			return fmt.Errorf("%s: %w", p.backend.Name(), ErrUnresizable)
		}
		if p.extent.visible < p.backend.Size() {
			if err := t.Truncate(p.extent.visible); err != nil {
				return wrapIo("truncate", err)
			}
		}
		if err := t.Truncate(p.extent.size); err != nil {
			return wrapIo("truncate", err)
		}
	}

	for _, r := range p.overlay.runs {
		if _, err := p.backend.WriteAt(r.data, int64(r.start)); err != nil {
			return wrapIo(fmt.Sprintf("save at offset %#x", r.start), err)
		}
	}
	if f, ok := p.backend.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return wrapIo("flush", err)
		}
	}

	dbg("saved provider %d: %d overlay runs, size %d", p.id, len(p.overlay.runs), p.extent.size)
	p.overlay.clear()
	p.pages.clear()
	p.undo.clear()
	p.redo.clear()
	size := p.backend.Size()
	p.extent = extent{size: size, visible: size}
	p.dirty = false
	return nil
}

// Undo rolls back the most recent undo group.
func (p *Provider) Undo() error {
	p.lock.Lock()
	if err := p.checkOpen(); err != nil {
		p.lock.Unlock()
		return err
	}
	g := p.undo.pop()
	if g == nil {
		p.lock.Unlock()
		return ErrNothingToUndo
	}
	g.rollback(&p.overlay, 0)
	p.extent = g.before
	p.redo.push(g)
	from, to := g.span()
	r := region.FromBounds(p.addressOf(from), p.addressOf(to))
	p.lock.Unlock()

	dbg("undid group '%s' on provider %d", g.name, p.id)
	p.notify(r)
	return nil
}

// Redo replays the most recently undone group.
func (p *Provider) Redo() error {
	p.lock.Lock()
	if err := p.checkOpen(); err != nil {
		p.lock.Unlock()
		return err
	}
	g := p.redo.pop()
	if g == nil {
		p.lock.Unlock()
		return ErrNothingToRedo
	}
	g.replay(&p.overlay)
	p.extent = g.after
	p.undo.push(g)
	p.dirty = true
	from, to := g.span()
	r := region.FromBounds(p.addressOf(from), p.addressOf(to))
	p.lock.Unlock()

	dbg("redid group '%s' on provider %d", g.name, p.id)
	p.notify(r)
	return nil
}

func (p *Provider) CanUndo() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.undo.top() != nil
}

func (p *Provider) CanRedo() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.redo.top() != nil
}

// UndoNames returns the names of the groups on the undo stack, most recent first.
func (p *Provider) UndoNames() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()

	names := make([]string, 0, p.undo.count)
	p.undo.each(func(g *undoGroup) {
		names = append(names, g.name)
	})
	return names
}

// BeginGroup opens an undo group. Groups nest; everything written until the matching EndGroup of
// the outermost BeginGroup is undone as one.
func (p *Provider) BeginGroup(name string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.beginLocked(name)
}

// EndGroup closes the innermost open group.
func (p *Provider) EndGroup() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.endLocked()
}

// beginLocked opens a group, or nests inside the one already open. Every call must be paired
// with endLocked.
func (p *Provider) beginLocked(name string) {
	p.groupDepth++
	if p.group == nil {
		p.group = &undoGroup{name: name, before: p.extent}
	}
}

func (p *Provider) endLocked() {
	if p.groupDepth == 0 {
		return
	}
	p.groupDepth--
	if p.groupDepth > 0 {
		return
	}

	g := p.group
	p.group = nil
	g.after = p.extent
	if g.empty() {
		return
	}
	p.undo.push(g)
	p.redo.clear()
}

// Group runs fn inside an undo group. If fn fails or ctx is done when fn returns, every change fn
// made is rolled back and the error is returned.
func (p *Provider) Group(ctx context.Context, name string, fn func() error) error {
	p.lock.Lock()
	p.beginLocked(name)
	mark := len(p.group.changes)
	ext := p.extent
	p.lock.Unlock()

	err := fn()
	if err == nil {
		err = ctx.Err()
	}

	p.lock.Lock()
	if err != nil {
		p.group.rollback(&p.overlay, mark)
		p.group.changes = p.group.changes[:mark]
		p.extent = ext
		dbg("rolled back group '%s' on provider %d: %v", name, p.id, err)
	}
	p.endLocked()
	p.lock.Unlock()
	return err
}

// PageCount is the number of display pages. It is at least one.
func (p *Provider) PageCount() uint64 {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.pageCountLocked()
}

func (p *Provider) pageCountLocked() uint64 {
	if p.opts.PageSize == 0 || p.extent.size == 0 {
		return 1
	}
	return (p.extent.size + p.opts.PageSize - 1) / p.opts.PageSize
}

func (p *Provider) CurrentPage() uint64 {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.currentPage
}

func (p *Provider) SetCurrentPage(n uint64) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if n >= p.pageCountLocked() {
		return fmt.Errorf("%w: page %d of %d", ErrOutOfBounds, n, p.pageCountLocked())
	}
	p.currentPage = n
	return nil
}

// CurrentPageAddress is the address of the first byte of the current page.
func (p *Provider) CurrentPageAddress() uint64 {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.addressOf(p.currentPage * p.opts.PageSize)
}

// PageRegion returns the addresses covered by the current page.
func (p *Provider) PageRegion() region.Region {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.opts.PageSize == 0 {
		return region.Region{Address: p.addressOf(0), Size: p.extent.size}
	}
	start := p.currentPage * p.opts.PageSize
	end := min(start+p.opts.PageSize, p.extent.size)
	return region.Region{Address: p.addressOf(start), Size: end - start}
}

// Overlay returns a copy of the unsaved writes keyed by source offset.
func (p *Provider) Overlay() []Run {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.overlay.exported()
}

// SetOverlay replaces the unsaved writes, for example when loading a project. The undo history is
// cleared.
func (p *Provider) SetOverlay(runs []Run) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkOpen(); err != nil {
		return err
	}

	var o overlay
	size := p.extent.size
	for _, r := range runs {
		if r.End() > size {
			if !p.backend.Capabilities().Has(Resizable) {
				return fmt.Errorf("%w: overlay run at %#x exceeds size %d", ErrOutOfBounds, r.Start, p.extent.size)
			}
			size = r.End()
		}
		o.set(r.Start, r.Bytes)
	}

	p.overlay = o
	p.extent.size = size
	p.undo.clear()
	p.redo.clear()
	p.dirty = !o.empty() || size != p.backend.Size()
	return nil
}

// CacheStats reports page cache hits and misses.
func (p *Provider) CacheStats() (hits, misses uint64) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.pages == nil {
		return 0, 0
	}
	return p.pages.stats()
}

// OnDataChanged registers fn to be called with the addresses affected by each change. The returned
// function unregisters it.
func (p *Provider) OnDataChanged(fn func(r region.Region)) (remove func()) {
	p.listenerLock.Lock()
	defer p.listenerLock.Unlock()

	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	return func() {
		p.listenerLock.Lock()
		defer p.listenerLock.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Provider) notify(r region.Region) {
	p.listenerLock.Lock()
	fns := make([]func(region.Region), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.listenerLock.Unlock()

	for _, fn := range fns {
		fn(r)
	}
}

// Source is the read side of a provider, as needed by search, diff and pattern decoding.
type Source interface {
	Read(addr uint64, buf []byte) (int, error)
	Region() region.Region
}

// ReadFull reads len(buf) bytes at addr or fails.
func ReadFull(src Source, addr uint64, buf []byte) error {
	n, err := src.Read(addr, buf)
	if err == nil && n < len(buf) {
		err = ErrOutOfBounds
	}
	if err != nil && !errors.Is(err, ErrOutOfBounds) && !errors.Is(err, ErrIo) {
		err = wrapIo("read", err)
	}
	return err
}
