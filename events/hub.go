package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/JoshPattman/resumestudio/graph"
	"github.com/gorilla/websocket"
)

type broadcast struct {
	threadID string
	data     []byte
}

// Hub broadcasts graph events to connected websocket clients. Clients that
// fall behind are dropped.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcast
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcast, 1024),
		register:   make(chan *Client, 128),
		unregister: make(chan *Client, 128),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("Websocket connected", "total_clients", total, "thread_id", client.threadID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("Websocket disconnected", "total_clients", total)

		case msg := <-h.broadcast:
			h.mutex.RLock()
			snapshot := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				if c.threadID == "" || c.threadID == msg.threadID {
					snapshot = append(snapshot, c)
				}
			}
			h.mutex.RUnlock()

			for _, client := range snapshot {
				select {
				case client.send <- msg.data:
				default:
					h.logger.Warn("Dropping slow websocket client")
					h.mutex.Lock()
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
					h.mutex.Unlock()
				}
			}
		}
	}
}

// Broadcast queues data for clients following threadID (and clients
// following every thread). It never blocks.
func (h *Hub) Broadcast(threadID string, data []byte) {
	select {
	case h.broadcast <- broadcast{threadID: threadID, data: data}:
	default:
		h.logger.Warn("Websocket broadcast dropped", "reason", "buffer_full")
	}
}

// Observe implements graph.Observer.
func (h *Hub) Observe(e graph.Event) {
	data, err := encode(e)
	if err != nil {
		h.logger.Error("Failed to encode event", "err", err)
		return
	}
	h.Broadcast(e.ThreadID, data)
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and streams events to it. The optional
// thread query parameter limits the stream to one thread.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "err", err)
		return
	}
	client := newClient(h, conn, r.URL.Query().Get("thread"))
	h.register <- client
	go client.writePump()
	go client.readPump()
}
