package cache

import "container/list"

// item is one entry of the recency index.
// Exactly one of mem or path carries the bytes.
type item struct {
	key        string
	size       int64
	lastAccess uint64
	seq        uint64
	mem        []byte
	path       string
}

// index tracks recency, sizes and pins. It is not safe for concurrent use;
// the owning store serializes access with its mutex.
type index struct {
	capacity int64
	size     int64
	clock    uint64
	seq      uint64

	items map[string]*list.Element
	lru   *list.List // front = most recently used
	pins  map[string]int

	evictions    int64
	evictedBytes int64
}

func newIndex(capacity int64) *index {
	return &index{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		pins:     make(map[string]int),
	}
}

func (x *index) tick() uint64 {
	x.clock++
	return x.clock
}

func (x *index) get(key string) (*item, bool) {
	el, ok := x.items[key]
	if !ok {
		return nil, false
	}
	it := el.Value.(*item)
	it.lastAccess = x.tick()
	x.lru.MoveToFront(el)
	return it, true
}

func (x *index) peek(key string) (*item, bool) {
	el, ok := x.items[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*item), true
}

// insert adds or replaces key and returns the replaced item, if any.
func (x *index) insert(it *item) (replaced *item) {
	if el, ok := x.items[it.key]; ok {
		replaced = el.Value.(*item)
		x.size -= replaced.size
		x.lru.Remove(el)
	}
	x.seq++
	it.seq = x.seq
	it.lastAccess = x.tick()
	x.items[it.key] = x.lru.PushFront(it)
	x.size += it.size
	return replaced
}

func (x *index) remove(key string) (*item, bool) {
	el, ok := x.items[key]
	if !ok {
		return nil, false
	}
	it := el.Value.(*item)
	x.lru.Remove(el)
	delete(x.items, key)
	x.size -= it.size
	return it, true
}

func (x *index) pinned(key string) bool {
	return x.pins[key] > 0
}

func (x *index) pin(key string) {
	x.pins[key]++
}

// unpin reports whether the key became unpinned.
func (x *index) unpin(key string) bool {
	n, ok := x.pins[key]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(x.pins, key)
		return true
	}
	x.pins[key] = n - 1
	return false
}

// evict removes unpinned entries in recency order while the index is over
// capacity. Pinned entries are skipped, never waited on.
func (x *index) evict() []*item {
	var victims []*item
	el := x.lru.Back()
	for x.size > x.capacity && el != nil {
		prev := el.Prev()
		it := el.Value.(*item)
		if !x.pinned(it.key) {
			x.lru.Remove(el)
			delete(x.items, it.key)
			x.size -= it.size
			x.evictions++
			x.evictedBytes += it.size
			victims = append(victims, it)
		}
		el = prev
	}
	return victims
}

// oldestFirst returns keys from least to most recently used.
func (x *index) oldestFirst() []string {
	keys := make([]string, 0, x.lru.Len())
	for el := x.lru.Back(); el != nil; el = el.Prev() {
		keys = append(keys, el.Value.(*item).key)
	}
	return keys
}
