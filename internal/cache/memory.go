package cache

import "strings"

// handle addresses a slot of the memory tier arena. Handles stay valid until
// the slot is released, so the recency links never need remapping.
type handle int32

const nilHandle handle = -1

type memEntry struct {
	key       string
	value     []byte
	expiresAt int64
	size      uint64
	// prev points towards the most recently used end, next towards the least.
	prev, next handle
}

// memoryTier is a byte-bounded map with an intrusive recency list threaded
// through an arena of entries. It is not safe for concurrent use.
type memoryTier struct {
	index map[string]handle
	slots []memEntry
	free  []handle
	// head is the most recently used entry, tail the least.
	head, tail handle
	total      uint64
	max        uint64
}

func newMemoryTier(max uint64) *memoryTier {
	return &memoryTier{
		index: make(map[string]handle),
		head:  nilHandle,
		tail:  nilHandle,
		max:   max,
	}
}

func (m *memoryTier) put(key string, value []byte, expiresAt int64) {
	size := uint64(len(value))
	if h, ok := m.index[key]; ok {
		e := &m.slots[h]
		m.total = m.total - e.size + size
		e.value, e.expiresAt, e.size = value, expiresAt, size
		m.moveToFront(h)
		return
	}
	h := m.alloc()
	m.slots[h] = memEntry{key: key, value: value, expiresAt: expiresAt, size: size, prev: nilHandle, next: nilHandle}
	m.index[key] = h
	m.pushFront(h)
	m.total += size
}

// get returns the value for key. An expired entry that is not kept by keep is
// removed and reported absent.
func (m *memoryTier) get(key string, now int64, keep func(string) bool) ([]byte, int64, bool) {
	h, ok := m.index[key]
	if !ok {
		return nil, 0, false
	}
	e := &m.slots[h]
	if expired(e.expiresAt, now) && !keep(key) {
		m.release(h)
		return nil, 0, false
	}
	m.moveToFront(h)
	return e.value, e.expiresAt, true
}

// contains is get without the recency bump.
func (m *memoryTier) contains(key string, now int64, keep func(string) bool) bool {
	h, ok := m.index[key]
	if !ok {
		return false
	}
	if expired(m.slots[h].expiresAt, now) && !keep(key) {
		m.release(h)
		return false
	}
	return true
}

func (m *memoryTier) remove(key string) bool {
	h, ok := m.index[key]
	if !ok {
		return false
	}
	m.release(h)
	return true
}

func (m *memoryTier) removePrefix(prefix string) int {
	n := 0
	for key, h := range m.index {
		if strings.HasPrefix(key, prefix) {
			m.release(h)
			n++
		}
	}
	return n
}

func (m *memoryTier) clear() {
	m.index = make(map[string]handle)
	m.slots = nil
	m.free = nil
	m.head, m.tail = nilHandle, nilHandle
	m.total = 0
}

func (m *memoryTier) len() int { return len(m.index) }

// tier implementation used by the evictor.

func (m *memoryTier) used() uint64  { return m.total }
func (m *memoryTier) limit() uint64 { return m.max }

// victims walks from the least recently used end and collects keys not kept
// by keep until their sizes add up to need.
func (m *memoryTier) victims(keep func(string) bool, need uint64) []string {
	var out []string
	var freed uint64
	for h := m.tail; h != nilHandle && freed < need; h = m.slots[h].prev {
		if e := &m.slots[h]; !keep(e.key) {
			out = append(out, e.key)
			freed += e.size
		}
	}
	return out
}

func (m *memoryTier) purgeExpired(now int64, keep func(string) bool) (int, error) {
	n := 0
	for h := m.tail; h != nilHandle; {
		e := &m.slots[h]
		prev := e.prev
		if expired(e.expiresAt, now) && !keep(e.key) {
			m.release(h)
			n++
		}
		h = prev
	}
	return n, nil
}

func (m *memoryTier) evict(key string) error {
	m.remove(key)
	return nil
}

func (m *memoryTier) alloc() handle {
	if n := len(m.free); n > 0 {
		h := m.free[n-1]
		m.free = m.free[:n-1]
		return h
	}
	m.slots = append(m.slots, memEntry{})
	return handle(len(m.slots) - 1)
}

func (m *memoryTier) release(h handle) {
	e := &m.slots[h]
	m.unlink(h)
	delete(m.index, e.key)
	m.total -= e.size
	*e = memEntry{prev: nilHandle, next: nilHandle}
	m.free = append(m.free, h)
}

func (m *memoryTier) pushFront(h handle) {
	e := &m.slots[h]
	e.prev = nilHandle
	e.next = m.head
	if m.head != nilHandle {
		m.slots[m.head].prev = h
	}
	m.head = h
	if m.tail == nilHandle {
		m.tail = h
	}
}

func (m *memoryTier) unlink(h handle) {
	e := &m.slots[h]
	if e.prev != nilHandle {
		m.slots[e.prev].next = e.next
	} else {
		m.head = e.next
	}
	if e.next != nilHandle {
		m.slots[e.next].prev = e.prev
	} else {
		m.tail = e.prev
	}
	e.prev, e.next = nilHandle, nilHandle
}

func (m *memoryTier) moveToFront(h handle) {
	if m.head == h {
		return
	}
	m.unlink(h)
	m.pushFront(h)
}
