package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffwilliams/hexcore/internal/region"
)

func bookmarkNames(bs []Bookmark) []string {
	var s []string
	for _, b := range bs {
		s = append(s, b.Name)
	}
	return s
}

func TestBookmarks(t *testing.T) {
	bs := NewBookmarks()
	header := bs.Add(Bookmark{Region: region.Region{Address: 0, Size: 16}, Name: "header"})
	entry := bs.Add(Bookmark{Region: region.Region{Address: 8, Size: 4}, Name: "entry"})
	table := bs.Add(Bookmark{Region: region.Region{Address: 32, Size: 8}, Name: "entries"})

	assert.Less(t, header.ID, entry.ID)
	assert.Less(t, entry.ID, table.ID)
	assert.Equal(t, 3, bs.Len())

	assert.Equal(t, []string{"header", "entry", "entries"}, bookmarkNames(bs.All()))
	assert.Equal(t, []string{"header", "entry"}, bookmarkNames(bs.At(9)))
	assert.Equal(t, []string{"header"}, bookmarkNames(bs.At(2)))
	assert.Equal(t, []string{"entry", "entries"}, bookmarkNames(bs.Overlapping(region.Region{Address: 10, Size: 30})))

	assert.Equal(t, []string{"entries", "entry"}, bookmarkNames(bs.WithPrefix("ent")))
	assert.Equal(t, []string{"entry"}, bookmarkNames(bs.Named("entry")))

	next, ok := bs.Next(8)
	require.True(t, ok)
	assert.Equal(t, "entries", next.Name)
	prev, ok := bs.Prev(31)
	require.True(t, ok)
	assert.Equal(t, "header", prev.Name)

	assert.True(t, bs.Remove(entry.ID))
	assert.False(t, bs.Remove(entry.ID))
	_, ok = bs.Get(entry.ID)
	assert.False(t, ok)
	assert.Empty(t, bs.WithPrefix("entry"))
}

func TestBookmarkUpdate(t *testing.T) {
	bs := NewBookmarks()
	b := bs.Add(Bookmark{Region: region.Region{Address: 0, Size: 4}, Name: "a"})

	require.NoError(t, bs.Update(b.ID, func(b *Bookmark) {
		b.Name = "renamed"
		b.Region = region.Region{Address: 100, Size: 2}
		b.ID = 999
	}))
	got, ok := bs.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Name)
	assert.Empty(t, bs.At(0))
	assert.Equal(t, []string{"renamed"}, bookmarkNames(bs.At(101)))
	assert.Equal(t, []string{"renamed"}, bookmarkNames(bs.WithPrefix("ren")))
	assert.Empty(t, bs.WithPrefix("a"))

	require.NoError(t, bs.SetLocked(b.ID, true))
	assert.ErrorIs(t, bs.Update(b.ID, func(b *Bookmark) { b.Name = "x" }), ErrLocked)
	require.NoError(t, bs.SetLocked(b.ID, false))
	assert.NoError(t, bs.Update(b.ID, func(b *Bookmark) { b.Name = "x" }))

	assert.ErrorIs(t, bs.Update(12345678, func(*Bookmark) {}), ErrNoBookmark)
}

func TestBookmarkIDsAreUniqueAcrossProviders(t *testing.T) {
	a, b := NewBookmarks(), NewBookmarks()
	x := a.Add(Bookmark{Name: "x", Region: region.Region{Size: 1}})
	y := b.Add(Bookmark{Name: "y", Region: region.Region{Size: 1}})
	assert.NotEqual(t, x.ID, y.ID)

	a.Clear()
	assert.Equal(t, 0, a.Len())
	assert.Empty(t, a.All())
}
