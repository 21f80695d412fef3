// Package reload re-reads the configuration file while the server runs and
// pushes the settings that can change live to their owners.
package reload

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the path to the configuration file to watch.
	ConfigPath string

	// PollInterval is how often to check for file changes.
	// Defaults to 5 seconds if zero.
	PollInterval time.Duration

	// Signals, when set, also trigger a reload on SIGHUP.
	Signals bool
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// EventType describes what triggered a reload.
type EventType string

const (
	// EventModified indicates the config file changed on disk.
	EventModified EventType = "modified"

	// EventSignal indicates a SIGHUP or a manual Trigger.
	EventSignal EventType = "signal"
)

// Event is a reload request.
type Event struct {
	Type       EventType
	ConfigPath string
}

// fileStamp identifies one version of the file. Size catches rewrites
// landing within the filesystem's mtime granularity.
type fileStamp struct {
	mod  time.Time
	size int64
}

// Watcher polls a configuration file for modifications.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of reload requests. Requests arriving while
// one is pending are coalesced.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Trigger requests a reload as if SIGHUP had been received.
func (w *Watcher) Trigger() {
	w.emit(EventSignal)
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) emit(t EventType) {
	select {
	case w.events <- Event{Type: t, ConfigPath: w.cfg.ConfigPath}:
	default:
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	var hup chan os.Signal
	if w.cfg.Signals {
		hup = make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
	}

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	last := w.stamp()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-hup:
			w.emit(EventSignal)
		case <-ticker.C:
			current := w.stamp()
			if current.mod.IsZero() || current == last {
				continue
			}
			last = current
			w.emit(EventModified)
		}
	}
}

func (w *Watcher) stamp() fileStamp {
	info, err := os.Stat(w.cfg.ConfigPath)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}
}
