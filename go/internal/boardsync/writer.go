package boardsync

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/reelboard/go/internal/docstore"
)

// writer drains whole-document writes one at a time, in enqueue order.
type writer struct {
	store   docstore.Store
	timeout time.Duration
	done    func(error)
	changed func()

	mu       sync.Mutex
	queue    [][]byte
	inFlight int
	idle     chan struct{} // closed while nothing is queued or in flight
	running  bool

	wakeCh   chan struct{}
	stopCh   chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

func newWriter(store docstore.Store, timeout time.Duration, done func(error), changed func()) *writer {
	idle := make(chan struct{})
	close(idle)
	return &writer{
		store:    store,
		timeout:  timeout,
		done:     done,
		changed:  changed,
		idle:     idle,
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (w *writer) start() {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	go w.run()
}

func (w *writer) enqueue(data []byte) {
	w.mu.Lock()
	wasIdle := w.pendingLocked() == 0
	w.queue = append(w.queue, data)
	if wasIdle {
		w.idle = make(chan struct{})
	}
	w.mu.Unlock()

	// Non-blocking send to wake the loop
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
	if wasIdle {
		w.changed()
	}
}

func (w *writer) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingLocked()
}

func (w *writer) pendingLocked() int {
	return len(w.queue) + w.inFlight
}

func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop lets the loop drain what is queued and waits for it to exit.
func (w *writer) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if running {
		<-w.finished
	}
}

func (w *writer) run() {
	defer close(w.finished)
	for {
		for w.writeNext() {
		}
		select {
		case <-w.wakeCh:
		case <-w.stopCh:
			for w.writeNext() {
			}
			return
		}
	}
}

// writeNext performs one queued write. It reports false when the queue
// was empty.
func (w *writer) writeNext() bool {
	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return false
	}
	data := w.queue[0]
	w.queue = w.queue[1:]
	w.inFlight++
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	err := w.store.WriteWhole(ctx, data)
	cancel()
	w.done(err)

	w.mu.Lock()
	w.inFlight--
	nowIdle := w.pendingLocked() == 0
	if nowIdle {
		close(w.idle)
	}
	w.mu.Unlock()

	if nowIdle {
		w.changed()
	}
	return true
}
