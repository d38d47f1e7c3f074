package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satishbabariya/exprsql/cli/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "query.sql")
	require.NoError(t, os.WriteFile(file, []byte("SELECT 1"), 0o644))

	var calls atomic.Int32
	w, err := watch.New(file, 20*time.Millisecond, func() error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.sql"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(file, []byte("SELECT 2"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := watch.New("/does/not/exist/query.sql", 0, func() error { return nil })
	assert.Error(t, err)
}
