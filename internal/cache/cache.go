// internal/cache/cache.go
package cache

// View is read access to raw register words of one namespace.
type View interface {
	Word(addr uint16) (uint16, bool)
}

// Cache holds the raw words read during the current cycle.
// It is not safe for concurrent use; owners serialize access or hand out
// Snapshot copies.
type Cache struct {
	words map[uint16]uint16
}

func New() *Cache {
	return &Cache{words: make(map[uint16]uint16)}
}

// Reset drops every word. Called at the start of each poll cycle.
func (c *Cache) Reset() {
	clear(c.words)
}

// Store records a contiguous run read from start.
// Words that would wrap past 0xFFFF are dropped.
func (c *Cache) Store(start uint16, words []uint16) {
	for i, w := range words {
		addr := int(start) + i
		if addr > 0xFFFF {
			return
		}
		c.words[uint16(addr)] = w
	}
}

// Set records a single word.
func (c *Cache) Set(addr, word uint16) {
	c.words[addr] = word
}

func (c *Cache) Word(addr uint16) (uint16, bool) {
	w, ok := c.words[addr]
	return w, ok
}

func (c *Cache) Len() int {
	return len(c.words)
}

// Snapshot returns an independent copy, so a decode pass always sees
// one consistent set of words.
func (c *Cache) Snapshot() *Cache {
	cp := make(map[uint16]uint16, len(c.words))
	for k, v := range c.words {
		cp[k] = v
	}
	return &Cache{words: cp}
}

// Empty is a View with no words.
var Empty View = emptyView{}

type emptyView struct{}

func (emptyView) Word(uint16) (uint16, bool) { return 0, false }
