package routecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectNoEntry(t *testing.T) {
	c := New(1)
	_, ok := c.Select("ghost:8080")
	assert.False(t, ok)
}

func TestSelectSoleElement(t *testing.T) {
	c := New(1)
	b := Backend{Host: "backend", Port: 4007}
	c.Put("router:8080", []Backend{b})

	got, ok := c.Select("router:8080")
	assert.True(t, ok)
	assert.Equal(t, b, got)
}

func TestSelectAmongMultiple(t *testing.T) {
	c := New(42)
	backends := []Backend{{Host: "a", Port: 1}, {Host: "b", Port: 2}, {Host: "c", Port: 3}}
	c.Put("router:8080", backends)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got, ok := c.Select("router:8080")
		assert.True(t, ok)
		seen[got.Host] = true
	}
	assert.Len(t, seen, 3)
}

func TestPutRejectsEmpty(t *testing.T) {
	c := New(1)
	c.Put("router:8080", nil)
	_, ok := c.Get("router:8080")
	assert.False(t, ok)
}

func TestDeleteThenGet(t *testing.T) {
	c := New(1)
	c.Put("router:8080", []Backend{{Host: "a", Port: 1}})
	c.Delete("router:8080")
	_, ok := c.Get("router:8080")
	assert.False(t, ok)
}

func TestPutReplacesWholesale(t *testing.T) {
	c := New(1)
	c.Put("router:8080", []Backend{{Host: "a", Port: 1}})
	c.Put("router:8080", []Backend{{Host: "b", Port: 2}})

	got, ok := c.Get("router:8080")
	assert.True(t, ok)
	assert.Equal(t, []Backend{{Host: "b", Port: 2}}, got)
}

// Querying after a sequence of put/delete returns the last put not
// superseded by a later delete, or none.
func TestPutDeleteSequenceLaw(t *testing.T) {
	c := New(1)
	c.Put("a", []Backend{{Host: "x", Port: 1}})
	c.Put("b", []Backend{{Host: "y", Port: 2}})
	c.Delete("a")
	c.Put("a", []Backend{{Host: "z", Port: 3}})
	c.Delete("b")

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []Backend{{Host: "z", Port: 3}}, got)

	_, ok = c.Get("b")
	assert.False(t, ok)
}
