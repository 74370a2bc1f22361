package orchestrator

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Controller watches a signals directory for stop and pause files so a
// running session can be interrupted from outside the process. Signal
// files are named "stop" and "pause"; creating one flips the matching
// flag. A watcher failure degrades to stat-on-read polling.
type Controller struct {
	signalsDir string

	mu     sync.RWMutex
	stop   bool
	paused bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewController creates a controller rooted at dir.
func NewController(dir string) (*Controller, error) {
	signalsDir := filepath.Join(dir, "signals")
	if err := os.MkdirAll(signalsDir, 0o700); err != nil {
		return nil, err
	}

	c := &Controller{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Polling fallback only.
		return c, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return c, nil
	}
	c.watcher = watcher
	go c.watch()
	return c, nil
}

func (c *Controller) watch() {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			c.mu.Lock()
			switch filepath.Base(event.Name) {
			case "stop":
				c.stop = true
			case "pause":
				c.paused = true
			}
			c.mu.Unlock()
		case <-c.watcher.Errors:
			// Keep watching.
		}
	}
}

// checkFile sets the flag if the signal file exists on disk. Covers
// signals written before the watcher started or missed by it.
func (c *Controller) checkFile(name string, flag *bool) {
	if _, err := os.Stat(filepath.Join(c.signalsDir, name)); err == nil {
		c.mu.Lock()
		*flag = true
		c.mu.Unlock()
	}
}

// ShouldStop reports whether a stop signal has been received.
func (c *Controller) ShouldStop() bool {
	c.checkFile("stop", &c.stop)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stop
}

// ShouldPause reports whether a pause signal is active.
func (c *Controller) ShouldPause() bool {
	c.checkFile("pause", &c.paused)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// SignalStop writes the stop file.
func (c *Controller) SignalStop() error {
	return os.WriteFile(filepath.Join(c.signalsDir, "stop"), nil, 0o600)
}

// SignalPause writes the pause file.
func (c *Controller) SignalPause() error {
	return os.WriteFile(filepath.Join(c.signalsDir, "pause"), nil, 0o600)
}

// Clear removes signal files and resets both flags.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.stop = false
	c.paused = false
	c.mu.Unlock()
	os.Remove(filepath.Join(c.signalsDir, "stop"))
	os.Remove(filepath.Join(c.signalsDir, "pause"))
}

// Close shuts the watcher down.
func (c *Controller) Close() {
	close(c.done)
	if c.watcher != nil {
		c.watcher.Close()
	}
}
