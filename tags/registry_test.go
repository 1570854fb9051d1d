package tags

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry([]Entry{
		{ID: "t1", Kind: "url", Parameters: "http://x/y"},
		{ID: "t2", Kind: "mystery", Parameters: "?"},
	})

	t.Run("present", func(t *testing.T) {
		entry, action, ok := reg.Lookup("t1")
		require.True(t, ok)
		assert.Equal(t, "t1", entry.ID)
		assert.Equal(t, URL{URL: "http://x/y"}, action)
	})

	t.Run("unknown kind is pre-resolved", func(t *testing.T) {
		_, action, ok := reg.Lookup("t2")
		require.True(t, ok)
		assert.Equal(t, Unknown{Tag: "t2", RawKind: "mystery", Parameters: "?"}, action)
	})

	t.Run("absent", func(t *testing.T) {
		_, action, ok := reg.Lookup("nope")
		assert.False(t, ok)
		assert.Nil(t, action)
	})
}

func TestRegistryDuplicateLaterWins(t *testing.T) {
	reg := NewRegistry([]Entry{
		{ID: "t1", Kind: "url", Parameters: "http://old"},
		{ID: "t1", Kind: "url", Parameters: "http://new"},
	})
	assert.Equal(t, 1, reg.Len())

	_, action, ok := reg.Lookup("t1")
	require.True(t, ok)
	assert.Equal(t, URL{URL: "http://new"}, action)
}

func TestRegistryMutations(t *testing.T) {
	reg := NewRegistry([]Entry{{ID: "b", Kind: "quit"}})

	require.NoError(t, reg.Put(Entry{ID: "a", Kind: "year", Parameters: "1990"}))
	require.Error(t, reg.Put(Entry{ID: "", Kind: "year"}))
	require.Error(t, reg.Put(Entry{ID: "c"}))

	entries := reg.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)

	assert.True(t, reg.Delete("b"))
	assert.False(t, reg.Delete("b"))
	assert.Equal(t, 1, reg.Len())

	reg.Replace([]Entry{{ID: "z", Kind: "url", Parameters: "http://z"}})
	_, _, ok := reg.Lookup("a")
	assert.False(t, ok)
	_, _, ok = reg.Lookup("z")
	assert.True(t, ok)
}

func TestRegistryReloadFromKeepsTableOnFailure(t *testing.T) {
	path := writeTable(t, "t1,url,http://x\n")
	reg, err := Load(path)
	require.NoError(t, err)

	err = reg.ReloadFrom(filepath.Join(filepath.Dir(path), "missing.csv"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	_, _, ok := reg.Lookup("t1")
	assert.True(t, ok, "previous table must survive a failed reload")

	empty := writeTable(t, "# emptied\n")
	require.Error(t, reg.ReloadFrom(empty))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry([]Entry{{ID: "seed", Kind: "quit"}})
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = reg.Put(Entry{ID: fmt.Sprintf("tag-%d", i), Kind: "url", Parameters: "http://x"})
		}(i)
		go func(i int) {
			defer wg.Done()
			reg.Lookup(fmt.Sprintf("tag-%d", i))
			reg.Entries()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 51, reg.Len())
}
