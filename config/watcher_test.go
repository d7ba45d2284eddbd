package config

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

// eventSink collects watcher callbacks for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []FileEvent
}

func (s *eventSink) record(e FileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) ops() []FileOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]FileOp, len(s.events))
	for i, e := range s.events {
		ops[i] = e.Op
	}
	return ops
}

func fastWatcher(paths ...string) *FileWatcher {
	return NewFileWatcher(paths,
		WithPollInterval(10*time.Millisecond),
		WithDebounce(20*time.Millisecond))
}

func TestWatcherDetectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	w := fastWatcher(path)
	sink := &eventSink{}
	w.OnChange(sink.record)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// Push the mod time forward; coarse filesystem clocks can otherwise
	// hide a quick rewrite.
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		return len(sink.ops()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, FileOpWrite, sink.ops()[0])
}

func TestWatcherDetectsCreateAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.yaml")

	w := fastWatcher(path)
	sink := &eventSink{}
	w.OnChange(sink.record)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("x: 1\n"), 0o600))
	require.Eventually(t, func() bool {
		return len(sink.ops()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, FileOpCreate, sink.ops()[0])

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		ops := sink.ops()
		return len(ops) >= 2 && ops[len(ops)-1] == FileOpRemove
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burst.yaml")
	require.NoError(t, os.WriteFile(path, []byte("n: 0\n"), 0o600))

	w := NewFileWatcher([]string{path},
		WithPollInterval(5*time.Millisecond),
		WithDebounce(100*time.Millisecond))
	sink := &eventSink{}
	w.OnChange(sink.record)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	base := time.Now()
	for i := 1; i <= 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("n: 1\n"), 0o600))
		ts := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, os.Chtimes(path, ts, ts))
		time.Sleep(15 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return len(sink.ops()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, sink.ops(), 1, "burst of writes should collapse into one event")
}

func TestWatcherStartTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	w := fastWatcher(path)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	require.Error(t, w.Start(context.Background()))
}

func TestWatcherRestartsAfterStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	w := fastWatcher(path)
	sink := &eventSink{}
	w.OnChange(sink.record)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		return len(sink.ops()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, FileOpWrite, sink.ops()[0])
}

func TestWatcherStopIdempotent(t *testing.T) {
	w := fastWatcher(filepath.Join(t.TempDir(), "app.yaml"))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestWatchAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	loader := NewLoader().WithConfigPath(path)
	reloaded := make(chan *Config, 4)
	w, err := loader.WatchAndReload(context.Background(),
		func(cfg *Config) { reloaded <- cfg },
		func(err error) { t.Errorf("unexpected reload error: %v", err) },
		WithPollInterval(10*time.Millisecond),
		WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "warn", cfg.Log.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatchAndReloadReportsLoadErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	loader := NewLoader().WithConfigPath(path)
	errs := make(chan error, 4)
	w, err := loader.WatchAndReload(context.Background(),
		func(*Config) { t.Error("broken config should not reload") },
		func(err error) { errs <- err },
		WithPollInterval(10*time.Millisecond),
		WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: xml\n"), 0o600))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case loadErr := <-errs:
		assert.ErrorContains(t, loadErr, "log format")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for load error")
	}
}

func TestWatchAndReloadRequiresPath(t *testing.T) {
	_, err := NewLoader().WatchAndReload(context.Background(), func(*Config) {}, nil)
	require.Error(t, err)
}
