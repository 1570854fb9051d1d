package tags

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := writeTable(t, "t1,url,http://one\n")
	reg, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(path, reg)
	w.SetDebounce(20 * time.Millisecond)
	reloaded := make(chan error, 4)
	w.OnReload = func(err error) { reloaded <- err }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("t1,url,http://two\nt2,year,1990\n"), 0o644))

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not reload the tag table")
	}

	_, action, ok := reg.Lookup("t1")
	require.True(t, ok)
	assert.Equal(t, URL{URL: "http://two"}, action)
	assert.Equal(t, 2, reg.Len())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherReloadFailureKeepsTable(t *testing.T) {
	path := writeTable(t, "t1,url,http://one\n")
	reg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("# emptied\n"), 0o644))

	w := NewWatcher(path, reg)
	var got error
	w.OnReload = func(err error) { got = err }

	require.Error(t, w.Reload())
	assert.True(t, IsConfigError(got))
	assert.Equal(t, 1, reg.Len())
}
