package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOp_String(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Op(42).String())
}

func TestFilters(t *testing.T) {
	f := BaseNameFilter("providers.yml")
	assert.True(t, f("/etc/docfeat/providers.yml"))
	assert.False(t, f("/etc/docfeat/providers.yml.swp"))

	assert.True(t, YAMLFilter("a.yml"))
	assert.True(t, YAMLFilter("a.yaml"))
	assert.False(t, YAMLFilter("a.json"))
}

func TestBatch_CoalescesByPath(t *testing.T) {
	var b batch
	b.add(ChangeEvent{Op: OpCreate, Path: "a"})
	b.add(ChangeEvent{Op: OpCreate, Path: "b"})
	b.add(ChangeEvent{Op: OpWrite, Path: "a"})

	events := b.drain()
	require.Len(t, events, 2)
	assert.Equal(t, ChangeEvent{Op: OpWrite, Path: "a"}, events[0])
	assert.Equal(t, ChangeEvent{Op: OpCreate, Path: "b"}, events[1])

	assert.Empty(t, b.drain())
	b.add(ChangeEvent{Op: OpRemove, Path: "a"})
	assert.Equal(t, []ChangeEvent{{Op: OpRemove, Path: "a"}}, b.drain())
}

func TestFileWatcher_BatchesBurst(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	batches := make(chan []ChangeEvent, 10)
	fw.AddHandler(func(events []ChangeEvent) error {
		batches <- events
		return nil
	})
	require.NoError(t, fw.AddPath(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fw.Start(ctx)

	path := filepath.Join(dir, "providers.yml")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
	}

	select {
	case events := <-batches:
		require.Len(t, events, 1)
		assert.Equal(t, path, events[0].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}
}

func TestFileWatcher_DeliversChanges(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	var mu sync.Mutex
	var seen []string
	fw.AddFilter(YAMLFilter)
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			seen = append(seen, filepath.Base(e.Path))
		}
		return nil
	})
	require.NoError(t, fw.AddPath(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fw.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers.yml"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, seen, "ignored.txt")
	assert.Contains(t, seen, "providers.yml")
}

func TestFileWatcher_StopIsIdempotent(t *testing.T) {
	fw, err := NewFileWatcher(time.Millisecond, nil)
	require.NoError(t, err)

	assert.NoError(t, fw.Stop())
	assert.NoError(t, fw.Stop())
}
