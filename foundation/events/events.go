// Package events fans node events out to the websocket viewers of the node.
// A viewer that falls behind loses events instead of slowing the node down.
package events

import (
	"fmt"
	"sync"
)

// messageBuffer is how many events a viewer can fall behind before events
// to it are dropped.
const messageBuffer = 100

// receiver is one registered viewer.
type receiver struct {
	ch      chan string
	dropped uint64
}

// Events holds the registered viewers by id.
type Events struct {
	mu        sync.Mutex
	receivers map[string]*receiver
}

// New constructs an empty set of viewers.
func New() *Events {
	return &Events{
		receivers: make(map[string]*receiver),
	}
}

// Shutdown closes every viewer's channel.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, r := range evt.receivers {
		delete(evt.receivers, id)
		close(r.ch)
	}
}

// Acquire registers a viewer. Acquiring an id twice returns the same channel.
func (evt *Events) Acquire(id string) <-chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if r, exists := evt.receivers[id]; exists {
		return r.ch
	}

	r := receiver{ch: make(chan string, messageBuffer)}
	evt.receivers[id] = &r

	return r.ch
}

// Release unregisters the viewer and closes its channel. It returns the
// number of events the viewer missed while it was registered.
func (evt *Events) Release(id string) (uint64, error) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	r, exists := evt.receivers[id]
	if !exists {
		return 0, fmt.Errorf("viewer %q is not registered", id)
	}

	delete(evt.receivers, id)
	close(r.ch)

	return r.dropped, nil
}

// Len returns the number of registered viewers.
func (evt *Events) Len() int {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	return len(evt.receivers)
}

// Send queues the event for every viewer without blocking.
func (evt *Events) Send(s string) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for _, r := range evt.receivers {
		select {
		case r.ch <- s:
		default:
			r.dropped++
		}
	}
}
