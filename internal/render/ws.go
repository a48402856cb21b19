package render

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/reach_rig/internal/stimulus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // rig and display browser share the lab network
	},
}

// wsFrame is the JSON payload pushed to display clients.
type wsFrame struct {
	Seq      uint64             `json:"seq"`
	Elements []stimulus.Element `json:"elements"`
}

// WS broadcasts stimulus frames to browser canvases over websocket. The
// display page draws whatever element list it last received, so the rig
// only pushes deltas of the descriptor list, never pixels.
//
// ScheduleAsync hands the pending frame to a single writer goroutine and
// returns immediately; CheckAsyncReady reports whether every scheduled
// frame has been written, by comparing the written sequence number against
// the scheduled one. When the writer falls behind, the stale queued frame
// is discarded in favor of the newest, so the frame on screen is always
// the latest scheduled state.
type WS struct {
	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	pending []stimulus.Element

	scheduled atomic.Uint64
	written   atomic.Uint64
	frames    chan wsFrame
}

func NewWS() *WS {
	w := &WS{
		conns:  make(map[*websocket.Conn]struct{}),
		frames: make(chan wsFrame, 1),
	}
	go w.writeLoop()
	return w
}

// Handler upgrades display clients. Mount on the observer web server.
func (w *WS) Handler(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("render: websocket upgrade error: %v", err)
		return
	}
	w.mu.Lock()
	w.conns[conn] = struct{}{}
	w.mu.Unlock()
	log.Printf("render: display client connected (%s)", conn.RemoteAddr())

	// Reader only exists to observe close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				w.mu.Lock()
				delete(w.conns, conn)
				w.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (w *WS) DrawElements(elems []stimulus.Element) {
	w.mu.Lock()
	w.pending = append(w.pending[:0], elems...)
	w.mu.Unlock()
}

func (w *WS) EmptyScreen() {
	w.mu.Lock()
	w.pending = w.pending[:0]
	w.mu.Unlock()
}

// ScheduleAsync queues the pending frame for the writer goroutine. If a
// frame is still queued it is superseded, never the new one, so a later
// schedule always wins.
func (w *WS) ScheduleAsync() {
	w.mu.Lock()
	frame := wsFrame{Seq: w.scheduled.Add(1), Elements: append([]stimulus.Element(nil), w.pending...)}
	w.mu.Unlock()

	for {
		select {
		case w.frames <- frame:
			return
		default:
		}
		select {
		case <-w.frames:
		default:
		}
	}
}

// CheckAsyncReady reports whether every scheduled frame was either written
// or superseded by a written one.
func (w *WS) CheckAsyncReady() bool {
	return w.written.Load() >= w.scheduled.Load()
}

// Update presents synchronously: schedule and wait until the write lands.
func (w *WS) Update() error {
	w.ScheduleAsync()
	for !w.CheckAsyncReady() {
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (w *WS) writeLoop() {
	for frame := range w.frames {
		w.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(w.conns))
		for c := range w.conns {
			conns = append(conns, c)
		}
		w.mu.Unlock()

		for _, c := range conns {
			if err := c.WriteJSON(frame); err != nil {
				log.Printf("render: websocket write error: %v", err)
				w.mu.Lock()
				delete(w.conns, c)
				w.mu.Unlock()
				c.Close()
			}
		}
		// Frames leave the queue in sequence order, so this is monotonic.
		w.written.Store(frame.Seq)
	}
}
