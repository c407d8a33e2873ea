package docstore

import "sync"

// Dispatcher serialises the callbacks of one subscription and enforces its
// contract: callbacks never overlap, nothing runs after Close returns, and
// an error ends the subscription. Callbacks must not call Close themselves.
type Dispatcher struct {
	mu         sync.Mutex
	done       bool
	onSnapshot SnapshotFunc
	onError    ErrorFunc
}

// NewDispatcher wraps the subscriber's callbacks. A nil onError is allowed.
func NewDispatcher(onSnapshot SnapshotFunc, onError ErrorFunc) *Dispatcher {
	return &Dispatcher{onSnapshot: onSnapshot, onError: onError}
}

// Snapshot delivers s unless the subscription has ended. It reports whether
// the snapshot was delivered.
func (d *Dispatcher) Snapshot(s Snapshot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return false
	}
	d.onSnapshot(s)
	return true
}

// Fail ends the subscription and delivers err, once.
func (d *Dispatcher) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	d.done = true
	if d.onError != nil {
		d.onError(err)
	}
}

// Close ends the subscription without an error. It waits for a callback in
// progress to return.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.done = true
	d.mu.Unlock()
}

// Done reports whether the subscription has ended.
func (d *Dispatcher) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}
