package cache

import (
	"testing"

	"github.com/matryer/is"
)

func TestStoreAndReset(t *testing.T) {
	is := is.New(t)

	c := New()
	c.Store(3000, []uint16{1, 2, 3})

	w, ok := c.Word(3002)
	is.True(ok)
	is.Equal(w, uint16(3))

	_, ok = c.Word(3003)
	is.True(!ok) // never read is absent, not zero

	c.Reset()
	is.Equal(c.Len(), 0)
}

func TestStoreDoesNotWrap(t *testing.T) {
	is := is.New(t)

	c := New()
	c.Store(0xFFFE, []uint16{7, 8, 9})

	is.Equal(c.Len(), 2)
	_, ok := c.Word(0)
	is.True(!ok)
}

func TestSnapshotIsIndependent(t *testing.T) {
	is := is.New(t)

	c := New()
	c.Set(10, 100)
	snap := c.Snapshot()

	c.Set(10, 200)
	c.Reset()

	w, ok := snap.Word(10)
	is.True(ok)
	is.Equal(w, uint16(100))
}
