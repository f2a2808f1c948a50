// Package reload re-reads the configuration file while the gateway runs,
// on SIGHUP or when a poll sees the file change, and applies what can
// change live.
package reload

import (
	"context"
	"os"
	"time"
)

// DefaultPollInterval is used when NewWatcher gets a non-positive interval.
const DefaultPollInterval = 5 * time.Second

// Event reports that the watched file changed.
type Event struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Watcher polls a file and reports changes of modification time or size.
// A missing file is ignored until it reappears.
type Watcher struct {
	path     string
	interval time.Duration
	events   chan Event
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		path:     path,
		interval: interval,
		events:   make(chan Event, 1),
	}
}

// Events returns the change channel. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run polls until ctx is done. Changes that arrive while an event is still
// pending are coalesced into it.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last, _ := w.stat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, ok := w.stat()
			if !ok || (cur.ModTime.Equal(last.ModTime) && cur.Size == last.Size) {
				continue
			}
			last = cur
			select {
			case w.events <- cur:
			default:
			}
		}
	}
}

func (w *Watcher) stat() (Event, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		return Event{}, false
	}
	return Event{Path: w.path, ModTime: info.ModTime(), Size: info.Size()}, true
}
