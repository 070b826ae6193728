package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileStoreWatchSeesOtherWriters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	watched, err := NewFileStore(path)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	changes, err := watched.Watch(ctx)
	require.NoError(t, err)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644))
	select {
	case <-changes:
		t.Fatal("notified for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}

	writer, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, writer.SetItem("fin_cache:USER_DATA", `{"value":{}}`))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
