package controller

import (
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/worker"
)

// ProgressHub fans engine cycle reports out to connected websocket clients.
// The worker's Notify hook feeds it; slow or dead connections are dropped.
type ProgressHub struct {
	mu          sync.Mutex
	subscribers map[*websocket.Conn]chan worker.RunReport
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[*websocket.Conn]chan worker.RunReport),
	}
}

// Broadcast delivers a cycle report to every subscriber without blocking on
// any of them.
func (h *ProgressHub) Broadcast(report worker.RunReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.subscribers {
		select {
		case ch <- report:
		default:
			// Subscriber is not keeping up
			close(ch)
			delete(h.subscribers, conn)
		}
	}
}

func (h *ProgressHub) subscribe(conn *websocket.Conn) chan worker.RunReport {
	ch := make(chan worker.RunReport, 8)
	h.mu.Lock()
	h.subscribers[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *ProgressHub) unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.subscribers[conn]; ok {
		close(ch)
		delete(h.subscribers, conn)
	}
	h.mu.Unlock()
}

// HandleProgressWS streams per-cycle engine summaries to the client until it
// disconnects.
func (h *ProgressHub) HandleProgressWS(c *websocket.Conn) {
	defer c.Close()

	ch := h.subscribe(c)
	defer h.unsubscribe(c)

	// Drain reads so we notice the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case report, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteJSON(report); err != nil {
				log.Printf("Error writing JSON: %v", err)
				return
			}
		}
	}
}
