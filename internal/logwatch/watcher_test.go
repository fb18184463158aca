package logwatch

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

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) emit(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

func (s *lineSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *lineSink) waitFor(t *testing.T, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := s.snapshot()
		if len(got) < len(want) {
			return false
		}
		return assert.ObjectsAreEqual(want, got[len(got)-len(want):])
	}, 3*time.Second, 10*time.Millisecond, "got %v", s.snapshot())
}

func newWatcher(dir string) *Watcher {
	return &Watcher{Dir: dir, PollInterval: 10 * time.Millisecond, RescanInterval: 30 * time.Millisecond}
}

func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestLatestLog(t *testing.T) {
	dir := t.TempDir()

	_, err := LatestLog(dir)
	assert.ErrorIs(t, err, ErrNoLogFile)

	_, err = LatestLog(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrNoLogFile)

	old := filepath.Join(dir, "old.log")
	newer := filepath.Join(dir, "new.log")
	require.NoError(t, os.WriteFile(old, nil, 0644))
	require.NoError(t, os.WriteFile(newer, nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, err := LatestLog(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}

func TestWatcher_EmitsExistingAndAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "player.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n\n   \n  second  \n"), 0644))

	sink := &lineSink{}
	w := newWatcher(dir)
	require.NoError(t, w.Start(context.Background(), sink.emit))
	defer w.Stop()

	sink.waitFor(t, "first", "second")

	appendTo(t, path, "third\n")
	sink.waitFor(t, "first", "second", "third")
}

func TestWatcher_WaitsForCompleteLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "player.log")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	sink := &lineSink{}
	w := newWatcher(dir)
	require.NoError(t, w.Start(context.Background(), sink.emit))
	defer w.Stop()

	appendTo(t, path, "hal")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.snapshot())

	appendTo(t, path, "f line\n")
	sink.waitFor(t, "half line")
}

func TestWatcher_RestartsAfterTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "player.log")
	require.NoError(t, os.WriteFile(path, []byte("a long first line\n"), 0644))

	sink := &lineSink{}
	w := newWatcher(dir)
	require.NoError(t, w.Start(context.Background(), sink.emit))
	defer w.Stop()
	sink.waitFor(t, "a long first line")

	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0644))
	sink.waitFor(t, "a long first line", "x")
}

func TestWatcher_SwitchesToNewerLog(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(old, []byte("old\n"), 0644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	sink := &lineSink{}
	w := newWatcher(dir)
	require.NoError(t, w.Start(context.Background(), sink.emit))
	defer w.Stop()
	sink.waitFor(t, "old")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.log"), []byte("new session\n"), 0644))
	sink.waitFor(t, "old", "new session")
}

func TestWatcher_StartStop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.log"), nil, 0644))

	w := newWatcher(dir)
	assert.False(t, w.Watching())

	require.NoError(t, w.Start(context.Background(), func(string) {}))
	assert.True(t, w.Watching())
	assert.ErrorIs(t, w.Start(context.Background(), func(string) {}), ErrAlreadyWatching)

	w.Stop()
	assert.False(t, w.Watching())
	w.Stop()

	require.NoError(t, w.Start(context.Background(), func(string) {}), "restart after stop")
	w.Stop()
}

func TestWatcher_ContextCancelEndsWatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.log"), nil, 0644))

	ctx, cancel := context.WithCancel(context.Background())
	w := newWatcher(dir)
	require.NoError(t, w.Start(ctx, func(string) {}))

	cancel()
	require.Eventually(t, func() bool { return !w.Watching() }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_StartWithoutLog(t *testing.T) {
	w := newWatcher(t.TempDir())
	err := w.Start(context.Background(), func(string) {})
	assert.ErrorIs(t, err, ErrNoLogFile)
	assert.False(t, w.Watching())
}
