// Package netmon broadcasts live mesh events (bind-site transitions,
// frame summaries) to connected WebSocket clients, for the
// control-plane's /events route.
package netmon

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/frame"
)

// octal formats a logical address the way the rest of the mesh logs
// it: an unpadded octal literal with a "0o" prefix.
func octal(a addr.LogicalAddress) string { return fmt.Sprintf("0o%o", uint16(a)) }

// Event is one message pushed to every connected client.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Level     string      `json:"level"` // info, warning, critical
}

// BindSiteChanged is the Data payload for a "bind_site_changed" event.
type BindSiteChanged struct {
	Self  string `json:"self"`
	Site  string `json:"site"`
	Peer  string `json:"peer"`
	State string `json:"state"`
}

// FrameSeen is the Data payload for a "frame" event.
type FrameSeen struct {
	Direction string `json:"direction"` // rx, tx
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	MsgType   string `json:"msg_type"`
	ID        uint16 `json:"id"`
}

// Hub manages the set of live /events WebSocket connections.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub returns an unstarted Hub; call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run is the hub's event loop; it never returns on its own.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("netmon: client connected, total: %d", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
			log.Printf("netmon: client disconnected, total: %d", len(h.clients))

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					log.Printf("netmon: write error: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client connection to the hub.
func (h *Hub) Register(conn *websocket.Conn) { h.register <- conn }

// Unregister removes a client connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) { h.unregister <- conn }

// Broadcast queues event for delivery to every connected client,
// dropping it if the broadcast channel is already full rather than
// blocking the caller's networking loop.
func (h *Hub) Broadcast(eventType string, data interface{}, level string) {
	event := Event{Type: eventType, Timestamp: time.Now(), Data: data, Level: level}
	select {
	case h.broadcast <- event:
	default:
		log.Printf("netmon: broadcast channel full, dropping %s event", eventType)
	}
}

// NotifyBindSite is a convenience wrapper broadcasting a
// "bind_site_changed" event. Its signature is its own, not
// conn.AlertSink's. httpapi's server calls it directly from its
// /connect callback rather than through a connection manager's alert
// path.
func (h *Hub) NotifyBindSite(self addr.LogicalAddress, site addr.BindSite, peer addr.LogicalAddress, state string) {
	level := "info"
	if state == "EXPIRED" || state == "REFUSED" {
		level = "warning"
	}
	h.Broadcast("bind_site_changed", BindSiteChanged{
		Self:  octal(self),
		Site:  site.String(),
		Peer:  octal(peer),
		State: state,
	}, level)
}

// NotifyFrame broadcasts a "frame" event summarizing f's header.
func (h *Hub) NotifyFrame(direction string, f frame.Frame) {
	h.Broadcast("frame", FrameSeen{
		Direction: direction,
		Src:       octal(f.Header.SrcNode),
		Dst:       octal(f.Header.DstNode),
		MsgType:   f.Header.MsgType.String(),
		ID:        f.Header.ID,
	}, "info")
}
