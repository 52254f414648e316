package cache

// Cache is a bounded map that evicts the least recently used entry when full.
// It is not threadsafe.
type Cache[K comparable, V any] struct {
	entries   map[K]*Entry[K, V]
	recency   Deque[*Entry[K, V]]
	onEvicted func(key K, val V)
}

type Entry[K comparable, V any] struct {
	Key K
	Val V
}

func New[K comparable, V any](max int) Cache[K, V] {
	return Cache[K, V]{
		entries: make(map[K]*Entry[K, V]),
		recency: NewDeque[*Entry[K, V]](max),
	}
}

// OnEvicted registers fn to be called with each entry pushed out of the cache.
func (c *Cache[K, V]) OnEvicted(fn func(key K, val V)) {
	c.onEvicted = fn
}

// Get returns the entry for key and marks it as the most recently used, or nil.
func (c *Cache[K, V]) Get(key K) *Entry[K, V] {
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}

	c.touch(entry)
	return entry
}

// Peek is like Get but does not change the recency order.
func (c *Cache[K, V]) Peek(key K) *Entry[K, V] {
	return c.entries[key]
}

func (c *Cache[K, V]) touch(entry *Entry[K, V]) {
	c.recency.Del(func(e *Entry[K, V]) bool { return e == entry })
	c.recency.PushBack(entry)
}

// Set stores val under key, replacing any existing value.
func (c *Cache[K, V]) Set(key K, val V) *Entry[K, V] {
	entry, ok := c.entries[key]
	if ok {
		entry.Val = val
		c.touch(entry)
		return entry
	}

	return c.addNewEntry(key, val)
}

func (c *Cache[K, V]) addNewEntry(key K, val V) *Entry[K, V] {
	c.removeOldestIfNeeded()

	entry := &Entry[K, V]{Key: key, Val: val}
	c.entries[key] = entry
	c.recency.PushBack(entry)
	return entry
}

func (c *Cache[K, V]) removeOldestIfNeeded() {
	if c.recency.Count() < c.recency.Max() {
		return
	}

	e, ok := c.recency.PopFront()
	if !ok {
		return
	}
	delete(c.entries, e.Key)
	if c.onEvicted != nil {
		c.onEvicted(e.Key, e.Val)
	}
}

func (c *Cache[K, V]) Del(key K) {
	match := func(e *Entry[K, V]) bool {
		return e.Key == key
	}

	c.recency.Del(match)
	delete(c.entries, key)
}

func (c *Cache[K, V]) Len() int {
	return len(c.entries)
}

// Keys returns the keys from least to most recently used.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.recency.Count())
	c.recency.Each(func(e *Entry[K, V]) {
		keys = append(keys, e.Key)
	})
	return keys
}

func (c *Cache[K, V]) Clear() {
	c.entries = make(map[K]*Entry[K, V])
	c.recency.Clear()
}
