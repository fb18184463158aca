// Package logwatch tails the newest *.log file in a directory and reports
// each non-empty line, following the host application as it rotates logs.
package logwatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyWatching is returned by Start while a watch is running.
	ErrAlreadyWatching = errors.New("log watcher already running")

	// ErrNoLogFile is returned by Start when Dir holds no *.log file.
	ErrNoLogFile = errors.New("no log file found")
)

const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultRescanInterval = time.Second
)

// Watcher follows the newest log in Dir. The zero value polls with the
// default intervals once Dir is set.
type Watcher struct {
	Dir string

	// PollInterval is how often the current file is checked for growth
	// when no filesystem event arrives.
	PollInterval time.Duration

	// RescanInterval is how often Dir is checked for a newer log.
	RescanInterval time.Duration

	Logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start begins tailing in the background. Lines already in the newest file
// are emitted first. emit is called from a single goroutine.
func (w *Watcher) Start(ctx context.Context, emit func(line string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrAlreadyWatching
	}

	path, err := LatestLog(w.Dir)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	go func() {
		defer close(done)
		defer w.finish(done)
		w.run(runCtx, path, emit)
	}()
	return nil
}

// Stop cancels a running watch and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Watching reports whether a watch is running.
func (w *Watcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Watcher) finish(done chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == done {
		w.cancel()
		w.cancel = nil
		w.done = nil
	}
}

func (w *Watcher) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger.Named("logwatch")
}

func (w *Watcher) run(ctx context.Context, path string, emit func(string)) {
	log := w.logger()

	poll := w.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	rescan := w.RescanInterval
	if rescan <= 0 {
		rescan = DefaultRescanInterval
	}

	var events <-chan fsnotify.Event
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debug("fsnotify unavailable, polling only", zap.Error(err))
	} else {
		defer fsw.Close()
		if err := fsw.Add(w.Dir); err != nil {
			log.Debug("cannot watch log directory, polling only", zap.String("dir", w.Dir), zap.Error(err))
		} else {
			events = fsw.Events
		}
	}

	t := &tail{emit: emit}
	defer t.close()
	if err := t.open(path); err != nil {
		log.Warn("cannot open log", zap.String("path", path), zap.Error(err))
	} else {
		log.Info("watching log", zap.String("path", path))
		w.step(t, log)
	}

	pollTicker := time.NewTicker(poll)
	defer pollTicker.Stop()
	rescanTicker := time.NewTicker(rescan)
	defer rescanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) && isLog(ev.Name) {
				w.switchToLatest(t, log)
			}
			w.step(t, log)
		case <-rescanTicker.C:
			w.switchToLatest(t, log)
		case <-pollTicker.C:
			w.step(t, log)
		}
	}
}

func (w *Watcher) switchToLatest(t *tail, log *zap.Logger) {
	latest, err := LatestLog(w.Dir)
	if err != nil || latest == t.path {
		return
	}
	if err := t.open(latest); err != nil {
		log.Warn("cannot open log", zap.String("path", latest), zap.Error(err))
		return
	}
	log.Info("switched to newer log", zap.String("path", latest))
	w.step(t, log)
}

func (w *Watcher) step(t *tail, log *zap.Logger) {
	if t.f == nil {
		return
	}
	if err := t.poll(); err != nil {
		log.Debug("log read failed", zap.String("path", t.path), zap.Error(err))
	}
}

// LatestLog returns the most recently modified *.log file in dir.
func LatestLog(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoLogFile, dir)
		}
		return "", fmt.Errorf("read log directory: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !isLog(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(dir, e.Name())
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoLogFile, dir)
	}
	return latest, nil
}

func isLog(name string) bool {
	return filepath.Ext(name) == ".log"
}

// tail reads complete lines from one file, remembering its offset.
type tail struct {
	emit    func(string)
	path    string
	f       *os.File
	r       *bufio.Reader
	offset  int64
	partial string
}

func (t *tail) open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	t.close()
	t.path = path
	t.f = f
	t.r = bufio.NewReader(f)
	t.offset = 0
	t.partial = ""
	return nil
}

func (t *tail) close() {
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
}

// poll restarts from the top after truncation, then drains new lines.
func (t *tail) poll() error {
	info, err := os.Stat(t.path)
	if err != nil {
		return err
	}
	if info.Size() < t.offset {
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		t.r.Reset(t.f)
		t.offset = 0
		t.partial = ""
	}
	if info.Size() == t.offset {
		return nil
	}
	return t.drain()
}

func (t *tail) drain() error {
	for {
		chunk, err := t.r.ReadString('\n')
		t.offset += int64(len(chunk))
		if err == io.EOF {
			t.partial += chunk
			return nil
		}
		if err != nil {
			return err
		}
		line := strings.TrimSpace(t.partial + chunk)
		t.partial = ""
		if line != "" {
			t.emit(line)
		}
	}
}
