package monitor

import (
	"sync"

	"autovrs-client/internal/logger"
	"autovrs-client/internal/session"
)

// FrameBroadcaster fans the session's current display image out to any
// number of MJPEG viewers. It rides the session's observer contract: every
// state mutation with an image pushes that image to all subscribed viewers.
type FrameBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	stopped bool

	unsubscribe func()
}

// NewFrameBroadcaster attaches a broadcaster to the session.
func NewFrameBroadcaster(sess *session.Session) *FrameBroadcaster {
	fb := &FrameBroadcaster{
		clients: make(map[int]chan []byte),
	}
	fb.unsubscribe = sess.Subscribe(func(snap session.Snapshot) {
		if len(snap.Image) == 0 {
			return
		}
		fb.broadcast(snap.Image)
	})
	return fb
}

// Subscribe adds a viewer and returns a channel carrying display frames.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := fb.nextID
	fb.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	fb.clients[id] = ch

	logger.Debug("Monitor", "Viewer #%d subscribed (total viewers: %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a viewer.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		logger.Debug("Monitor", "Viewer #%d unsubscribed (remaining viewers: %d)", id, len(fb.clients))
	}
}

// Stop detaches from the session and closes all viewer channels.
func (fb *FrameBroadcaster) Stop() {
	fb.mu.Lock()
	if fb.stopped {
		fb.mu.Unlock()
		return
	}
	fb.stopped = true
	for id, ch := range fb.clients {
		close(ch)
		delete(fb.clients, id)
	}
	fb.mu.Unlock()

	fb.unsubscribe()
}

func (fb *FrameBroadcaster) broadcast(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.stopped {
		return
	}
	for _, ch := range fb.clients {
		select {
		case ch <- data:
		default:
			// Viewer too slow, skip this frame for this viewer
		}
	}
}
