// Package events broadcasts queue-depth and failure events to UI clients.
package events

import (
	"encoding/json"
	"net/http"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberpos/core/internal/logging"
	"github.com/emberpos/core/internal/models"
	"github.com/emberpos/core/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The POS UI runs in the same process boundary; only local clients.
		return true
	},
}

// Event types consumed by the operator-facing UI, e.g. the "3 orders
// pending sync" banner and the "check printer" alert.
const (
	EventSyncQueueDepth  = "sync.queue_depth"
	EventSyncEntryFailed = "sync.entry_failed"
	EventPrintQueueDepth = "print.queue_depth"
	EventPrintJobFailed  = "print.job_failed"
	EventOrdersUnsynced  = "orders.unsynced"
)

// Envelope wraps every broadcast message.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Client represents one connected UI client.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub maintains active client connections and broadcasts events to them.
// It implements the sync and print Notifier contracts.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         gosync.RWMutex
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub() *Hub {
	hub := &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	go hub.run()
	return hub
}

// run manages client connections and broadcasts.
func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("Events client connected",
				map[string]interface{}{"client_id": client.id, "total": total})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client send buffer is full, drop the connection.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops the dispatch loop.
func (h *Hub) Close() {
	close(h.done)
}

// Broadcast sends an event to all connected clients.
func (h *Hub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal event", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		// Never block a queue processor on a slow UI.
	}
}

// SyncQueueChanged implements the sync processor's Notifier.
func (h *Hub) SyncQueueChanged(stats map[models.SyncStatus]int) {
	h.Broadcast(EventSyncQueueDepth, map[string]interface{}{
		"pending":   stats[models.SyncStatusPending],
		"in_flight": stats[models.SyncStatusInFlight],
		"failed":    stats[models.SyncStatusFailed],
	})
}

// SyncEntryFailed implements the sync processor's Notifier.
func (h *Hub) SyncEntryFailed(entry *models.SyncQueueEntry, terminal bool) {
	h.Broadcast(EventSyncEntryFailed, map[string]interface{}{
		"entry_id": entry.ID,
		"table":    entry.TableName,
		"record":   entry.RecordID,
		"attempts": entry.Attempts,
		"terminal": terminal,
		"error":    entry.ErrorMessage,
	})
}

// PrintJobsChanged implements the print processor's Notifier.
func (h *Hub) PrintJobsChanged(stats map[models.PrintStatus]int) {
	h.Broadcast(EventPrintQueueDepth, map[string]interface{}{
		"pending": stats[models.PrintStatusPending],
		"failed":  stats[models.PrintStatusFailed],
	})
}

// PrintJobFailed implements the print processor's Notifier.
func (h *Hub) PrintJobFailed(job *models.PrintJob) {
	h.Broadcast(EventPrintJobFailed, map[string]interface{}{
		"job_id":   job.ID,
		"order_id": job.OrderID,
		"type":     job.PrintType,
		"printer":  job.PrinterName,
		"attempts": job.Attempts,
		"error":    job.ErrorMessage,
	})
}

// ServeHTTP upgrades a UI client connection and attaches it to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("Events upgrade failed", err)
		return
	}

	client := &Client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards inbound messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		// The dispatch loop may already be stopped; never wait on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("Events client read error",
					map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
			return
		}
	}
}

// writePump forwards hub messages to the client with keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.done:
			return
		}
	}
}
