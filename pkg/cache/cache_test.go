package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Basic(t *testing.T) {
	c := New(Options[string]{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	val, found = c.Get("b")
	require.True(t, found)
	assert.Equal(t, "value_b", val)
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options[string]{MaxSize: 3, OnEvict: func(k, _ string) { evicted = append(evicted, k) }})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	// Access 'a' to make it most recently used
	c.Get("a")

	// 'b' is now the least recently used
	c.Set("d", "value_d")

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	assert.Equal(t, []string{"d", "a", "c"}, c.Keys())
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c := New(Options[int]{})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	c.Delete("b")
	c.Delete("missing")
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"c", "a"}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
	_, found := c.Get("a")
	assert.False(t, found)
}

func TestLRU_Update(t *testing.T) {
	c := New(Options[int]{MaxSize: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	c.Set("c", 3)

	v, found := c.Peek("a")
	require.True(t, found)
	assert.Equal(t, 10, v)
	_, found = c.Peek("b")
	assert.False(t, found, "updating a refreshes its recency")
}

func TestLRU_Stats(t *testing.T) {
	c := New(Options[int]{})
	assert.Equal(t, 0.0, c.HitRate())

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")
	c.Peek("b")

	s := c.Stats()
	assert.Equal(t, int64(2), s.HitCount)
	assert.Equal(t, int64(1), s.MissCount)
	assert.Equal(t, 1, s.Length)
	assert.InDelta(t, 2.0/3.0, c.HitRate(), 1e-9)

	c.ResetStats()
	assert.Equal(t, int64(0), c.Stats().HitCount)
}

type outcome struct {
	Verdict string `msgpack:"verdict"`
	Rounds  int    `msgpack:"rounds"`
}

func TestLRU_SaveLoad(t *testing.T) {
	c := New(Options[outcome]{})
	c.Set("g1", outcome{Verdict: "safe", Rounds: 2})
	c.Set("g2", outcome{Verdict: "unsafe", Rounds: 1})
	c.Get("g1")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	restored := New(Options[outcome]{})
	require.NoError(t, restored.Load(&buf))
	assert.Equal(t, []string{"g1", "g2"}, restored.Keys(), "recency survives the round trip")
	v, ok := restored.Get("g2")
	require.True(t, ok)
	assert.Equal(t, outcome{Verdict: "unsafe", Rounds: 1}, v)

	assert.Error(t, restored.Load(bytes.NewBufferString("not msgpack")))
}

func TestLRU_LoadRespectsMaxSize(t *testing.T) {
	c := New(Options[int]{})
	for i, k := range []string{"a", "b", "c"} {
		c.Set(k, i)
	}
	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	small := New(Options[int]{MaxSize: 2})
	require.NoError(t, small.Load(&buf))
	assert.Equal(t, []string{"c", "b"}, small.Keys())
}

func TestPersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.msgpack")

	c := New(Options[string]{})
	c.Set("k", "v")
	require.NoError(t, PersistToFile(c, path))

	loaded := New(Options[string]{})
	require.NoError(t, LoadFromFile(loaded, path))
	v, ok := loaded.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestLoadFromFile_Missing(t *testing.T) {
	c := New(Options[string]{})
	require.NoError(t, LoadFromFile(c, filepath.Join(t.TempDir(), "nope")))
	assert.Equal(t, 0, c.Len())
}
