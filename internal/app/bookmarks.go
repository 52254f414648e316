package app

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/armon/go-radix"

	"github.com/jeffwilliams/hexcore/internal/color"
	"github.com/jeffwilliams/hexcore/internal/intvl"
	"github.com/jeffwilliams/hexcore/internal/region"
)

var (
	ErrNoBookmark = errors.New("no such bookmark")
	ErrLocked     = errors.New("bookmark is locked")
)

type Bookmark struct {
	ID      uint64        `json:"id"`
	Region  region.Region `json:"region"`
	Name    string        `json:"name"`
	Comment string        `json:"comment"`
	Color   color.Color   `json:"color"`
	Locked  bool          `json:"locked"`
}

var nextBookmarkID atomic.Uint64

// Bookmarks are the bookmarks of one provider, indexed by address and by name.
type Bookmarks struct {
	entries map[uint64]*Bookmark
	nodes   map[uint64]intvl.Handle
	tree    intvl.Tree[uint64]
	names   *radix.Tree
}

func NewBookmarks() *Bookmarks {
	return &Bookmarks{
		entries: map[uint64]*Bookmark{},
		nodes:   map[uint64]intvl.Handle{},
		names:   radix.New(),
	}
}

func nameKey(b *Bookmark) string {
	return fmt.Sprintf("%s\x00%016x", b.Name, b.ID)
}

// Add stores a copy of bm under a new id and returns it.
func (bs *Bookmarks) Add(bm Bookmark) Bookmark {
	bm.ID = nextBookmarkID.Add(1)
	bs.insert(&bm)
	dbg("added bookmark %d '%s' at %v", bm.ID, bm.Name, bm.Region)
	return bm
}

func (bs *Bookmarks) insert(b *Bookmark) {
	bs.entries[b.ID] = b
	bs.nodes[b.ID] = bs.tree.Insert(b.Region, b.ID)
	bs.names.Insert(nameKey(b), b.ID)
}

func (bs *Bookmarks) unlink(b *Bookmark) {
	bs.tree.Remove(bs.nodes[b.ID])
	delete(bs.nodes, b.ID)
	bs.names.Delete(nameKey(b))
	delete(bs.entries, b.ID)
}

func (bs *Bookmarks) Get(id uint64) (Bookmark, bool) {
	b, ok := bs.entries[id]
	if !ok {
		return Bookmark{}, false
	}
	return *b, true
}

func (bs *Bookmarks) Remove(id uint64) bool {
	b, ok := bs.entries[id]
	if !ok {
		return false
	}
	bs.unlink(b)
	return true
}

// Update applies fn to the bookmark with the given id. Locked bookmarks cannot be updated; the
// id cannot be changed.
func (bs *Bookmarks) Update(id uint64, fn func(b *Bookmark)) error {
	b, ok := bs.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoBookmark, id)
	}
	if b.Locked {
		return fmt.Errorf("%w: '%s'", ErrLocked, b.Name)
	}

	nb := *b
	fn(&nb)
	nb.ID = id
	bs.unlink(b)
	bs.insert(&nb)
	return nil
}

func (bs *Bookmarks) SetLocked(id uint64, locked bool) error {
	b, ok := bs.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoBookmark, id)
	}
	b.Locked = locked
	return nil
}

func (bs *Bookmarks) Len() int {
	return len(bs.entries)
}

func (bs *Bookmarks) Clear() {
	bs.entries = map[uint64]*Bookmark{}
	bs.nodes = map[uint64]intvl.Handle{}
	bs.tree.Clear()
	bs.names = radix.New()
}

func (bs *Bookmarks) fromEntries(es []intvl.Entry[uint64]) []Bookmark {
	r := make([]Bookmark, 0, len(es))
	for _, e := range es {
		r = append(r, *bs.entries[e.Value])
	}
	return r
}

// All returns the bookmarks ordered by address.
func (bs *Bookmarks) All() []Bookmark {
	return bs.fromEntries(bs.tree.Entries())
}

// At returns the bookmarks containing addr.
func (bs *Bookmarks) At(addr uint64) []Bookmark {
	return bs.fromEntries(bs.tree.At(addr))
}

func (bs *Bookmarks) Overlapping(r region.Region) []Bookmark {
	return bs.fromEntries(bs.tree.Overlapping(r))
}

// Next returns the first bookmark starting after addr.
func (bs *Bookmarks) Next(addr uint64) (Bookmark, bool) {
	e, ok := bs.tree.Next(addr)
	if !ok {
		return Bookmark{}, false
	}
	return *bs.entries[e.Value], true
}

// Prev returns the last bookmark ending at or before addr.
func (bs *Bookmarks) Prev(addr uint64) (Bookmark, bool) {
	e, ok := bs.tree.Prev(addr)
	if !ok {
		return Bookmark{}, false
	}
	return *bs.entries[e.Value], true
}

// WithPrefix returns the bookmarks whose name starts with prefix, ordered by name.
func (bs *Bookmarks) WithPrefix(prefix string) []Bookmark {
	var r []Bookmark
	bs.names.WalkPrefix(prefix, func(k string, v interface{}) bool {
		r = append(r, *bs.entries[v.(uint64)])
		return false
	})
	return r
}

// Named returns the bookmarks called exactly name, ordered by id.
func (bs *Bookmarks) Named(name string) []Bookmark {
	r := bs.WithPrefix(name + "\x00")
	sort.Slice(r, func(i, j int) bool { return r[i].ID < r[j].ID })
	return r
}
