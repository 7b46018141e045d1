package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeywordSeedWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keywords: []\n"), 0o644))

	repo := newMockKeywordRepo()
	svc := NewKeywordService(repo, noopScope(), zap.NewNop())
	w := NewKeywordSeedWatcher(svc, path, zap.NewNop())
	w.debounce = 10 * time.Millisecond
	w.reloaded = make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	content := []byte("keywords:\n  - keyword: stop sign\n    sign_code: \"330-A\"\n")

	// The watch is registered asynchronously, so keep touching the file
	// until a reload is observed.
	deadline := time.After(5 * time.Second)
	for {
		require.NoError(t, os.WriteFile(path, content, 0o644))
		select {
		case err := <-w.reloaded:
			require.NoError(t, err)
			assert.Equal(t, "330-A", repo.entries["stop sign"])
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("seed file change was not picked up")
		}
	}
}

func TestKeywordSeedWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keywords: []\n"), 0o644))

	svc := NewKeywordService(newMockKeywordRepo(), noopScope(), zap.NewNop())
	w := NewKeywordSeedWatcher(svc, path, zap.NewNop())
	w.debounce = 10 * time.Millisecond
	w.reloaded = make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	select {
	case <-w.reloaded:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestKeywordSeedWatcher_MissingDirectory(t *testing.T) {
	svc := NewKeywordService(newMockKeywordRepo(), noopScope(), zap.NewNop())
	w := NewKeywordSeedWatcher(svc, filepath.Join(t.TempDir(), "absent", "keywords.yaml"), zap.NewNop())

	err := w.Run(context.Background())

	assert.Error(t, err)
}
