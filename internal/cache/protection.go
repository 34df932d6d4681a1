package cache

import (
	"slices"
	"strings"
)

// protectionSet holds the keys and key prefixes pinned against eviction and
// expiry. Entries are kept sorted and no entry is a prefix of another, so the
// only stored prefix that can cover a key is its sorted predecessor.
//
// Reads match by prefix while releases match exactly: releasing "a::b" does
// not lift a protection stored as "a::".
type protectionSet struct {
	entries []string
}

// protect adds keys and reports whether the set changed.
func (p *protectionSet) protect(keys []string) bool {
	changed := false
	for _, key := range keys {
		if p.covered(key) {
			continue
		}
		i, _ := slices.BinarySearch(p.entries, key)
		j := i
		for j < len(p.entries) && strings.HasPrefix(p.entries[j], key) {
			j++
		}
		p.entries = slices.Replace(p.entries, i, j, key)
		changed = true
	}
	return changed
}

// release removes the entries textually equal to keys. A key covered by a
// different, shorter entry is left alone.
func (p *protectionSet) release(keys []string) bool {
	removed := false
	for _, key := range keys {
		i, found := slices.BinarySearch(p.entries, key)
		if !found {
			continue
		}
		p.entries = slices.Delete(p.entries, i, i+1)
		removed = true
	}
	return removed
}

func (p *protectionSet) isProtected(key string) bool {
	return p.covered(key)
}

// covered reports whether key equals an entry or starts with one.
func (p *protectionSet) covered(key string) bool {
	i, found := slices.BinarySearch(p.entries, key)
	if found {
		return true
	}
	return i > 0 && strings.HasPrefix(key, p.entries[i-1])
}

func (p *protectionSet) len() int { return len(p.entries) }

func (p *protectionSet) list() []string { return slices.Clone(p.entries) }
