package events

import (
	"sync"
	"sync/atomic"
)

// Hub fans events out to SSE subscribers. Slow subscribers miss events
// rather than block publishers; misses are counted.
type Hub struct {
	mu      sync.Mutex
	clients map[chan string]string // channel -> board filter, "" for all
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan string]string)}
}

// Subscribe receives every event.
func (h *Hub) Subscribe() chan string { return h.SubscribeBoard("") }

// SubscribeBoard receives events for board plus board-less ones such as bulk
// progress and mail import summaries.
func (h *Hub) SubscribeBoard(board string) chan string {
	ch := make(chan string, 16)
	h.mu.Lock()
	h.clients[ch] = board
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers reports how many clients are currently attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped reports how many deliveries were skipped because a subscriber's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Publish sends a pre-encoded, board-less event to everyone.
func (h *Hub) Publish(evt string) { h.publish("", evt) }

func (h *Hub) publish(board, evt string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, want := range h.clients {
		if board != "" && want != "" && want != board {
			continue
		}
		select {
		case ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

// Emit builds an event and delivers it to the subscribers watching board.
func (h *Hub) Emit(reqID, board, typ string, data any) {
	if h == nil {
		return
	}
	h.publish(board, MakeEvent(reqID, board, typ, data))
}
