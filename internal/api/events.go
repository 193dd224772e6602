package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/taskgrove/taskgrove/internal/task"
)

// EventType defines the type of feed message.
type EventType string

const (
	// EventTaskUpdate indicates a task was created, edited, completed,
	// or deleted.
	EventTaskUpdate EventType = "task_update"

	// EventStats carries updated store-wide statistics.
	EventStats EventType = "stats"
)

// Event is one feed broadcast message.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TaskUpdateData describes a task mutation. For completed and deleted
// actions the change applies to the task's whole subtree.
type TaskUpdateData struct {
	TaskID   string  `json:"task_id"`
	Action   string  `json:"action"` // created, updated, completed, deleted
	Title    string  `json:"title,omitempty"`
	Status   string  `json:"status,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}

// StatsData carries store-wide totals.
type StatsData struct {
	Total int `json:"total"`
}

// Feed broadcasts task mutations to connected WebSocket clients.
//
// This is a one-way monitor: clients receive change notifications but
// the feed is not a sync channel and carries no tree state.
type Feed struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewFeed creates a feed. Call Start before serving /ws.
func NewFeed(logger *slog.Logger) *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start launches the broadcast loop.
func (f *Feed) Start() {
	f.wg.Add(1)
	go f.broadcastLoop()
}

// Stop closes all client connections and stops the broadcast loop.
func (f *Feed) Stop() {
	f.cancel()

	f.clientsMu.Lock()
	for conn := range f.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(f.clients, conn)
	}
	f.clientsMu.Unlock()

	f.wg.Wait()
}

// Publish queues an event for broadcast. Drops the event when the
// channel is full rather than blocking a mutation handler.
func (f *Feed) Publish(evt Event) {
	select {
	case f.broadcast <- evt:
	case <-f.ctx.Done():
	default:
		f.logger.Warn("event feed full, dropping message", "type", evt.Type)
	}
}

// TaskEvent publishes a task_update event.
func (f *Feed) TaskEvent(action string, t *task.Task) {
	data, err := json.Marshal(TaskUpdateData{
		TaskID:   t.ID,
		Action:   action,
		Title:    t.Title,
		Status:   string(t.Status),
		ParentID: t.ParentID,
	})
	if err != nil {
		f.logger.Error("failed to marshal task event", "error", err)
		return
	}
	f.Publish(Event{Type: EventTaskUpdate, Timestamp: time.Now(), Data: data})
}

// SubtreeEvent publishes a task_update event for an action that only
// has an id (completed, deleted cascades).
func (f *Feed) SubtreeEvent(action, id string) {
	data, err := json.Marshal(TaskUpdateData{TaskID: id, Action: action})
	if err != nil {
		f.logger.Error("failed to marshal task event", "error", err)
		return
	}
	f.Publish(Event{Type: EventTaskUpdate, Timestamp: time.Now(), Data: data})
}

// Stats publishes a stats event.
func (f *Feed) Stats(total int) {
	data, err := json.Marshal(StatsData{Total: total})
	if err != nil {
		f.logger.Error("failed to marshal stats event", "error", err)
		return
	}
	f.Publish(Event{Type: EventStats, Timestamp: time.Now(), Data: data})
}

// ClientCount returns the current number of connected clients.
func (f *Feed) ClientCount() int {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	return len(f.clients)
}

func (f *Feed) broadcastLoop() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return

		case evt := <-f.broadcast:
			data, err := json.Marshal(evt)
			if err != nil {
				f.logger.Error("failed to marshal event", "error", err)
				continue
			}

			f.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(f.clients))
			for conn := range f.clients {
				conns = append(conns, conn)
			}
			f.clientsMu.RUnlock()

			// Write outside the read lock so a slow client doesn't
			// block new subscriptions.
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(f.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					f.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades an HTTP connection and subscribes it.
func (f *Feed) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	f.clientsMu.Lock()
	f.clients[conn] = true
	count := len(f.clients)
	f.clientsMu.Unlock()

	f.logger.Info("feed client connected", "clients", count)

	go f.readLoop(conn)
}

// readLoop drains client frames until disconnect; clients never send
// anything the feed acts on.
func (f *Feed) readLoop(conn *websocket.Conn) {
	defer f.removeClient(conn)

	for {
		if _, _, err := conn.Read(f.ctx); err != nil {
			return
		}
	}
}

func (f *Feed) removeClient(conn *websocket.Conn) {
	f.clientsMu.Lock()
	_, exists := f.clients[conn]
	if exists {
		delete(f.clients, conn)
	}
	count := len(f.clients)
	f.clientsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		f.logger.Info("feed client disconnected", "clients", count)
	}
}
