package sse

import (
	"context"
	"image"
	"sync"

	"facegate/internal/core/session"

	log "github.com/sirupsen/logrus"
)

// Ereignisnamen im SSE-Stream
const (
	EventFrame   = "frame"
	EventCleared = "cleared"
)

// Message ist eine Nachricht an die verbundenen Clients. Frame ist nur bei
// EventFrame gesetzt.
type Message struct {
	Event string
	Frame *session.FrameEvent
}

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan Message

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie
type Hub struct {
	// Registrierte Clients
	clients map[Client]bool

	// Eingehende Nachrichten vom Capture-Worker
	broadcast chan Message

	register   chan Client
	unregister chan Client

	// wird geschlossen, wenn Run endet
	done chan struct{}

	// Mutex zum Schutz des simultanen Zugriffs auf die Clients-Map
	mu sync.Mutex
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 100), // Puffer für 100 Nachrichten
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
		done:       make(chan struct{}),
	}
}

// Run startet die Verarbeitungsschleife des Hubs, bis ctx beendet wird.
// Beim Beenden werden alle Client-Kanäle geschlossen.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE Hub started and running")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			close(h.done)
			log.Info("SSE Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Infof("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			log.Debugf("Broadcasting %s to %d SSE clients", message.Event, len(h.clients))

			for client := range h.clients {
				select {
				case client <- message:
				default:
					// langsamer Client: lieber trennen als den Worker bremsen
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register registriert einen neuen Client am Hub. false, wenn ctx oder der Hub
// vorher beendet wurde.
func (h *Hub) Register(ctx context.Context, client Client) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount liefert die Anzahl verbundener Clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast stellt eine Nachricht in die Queue, ohne zu blockieren
func (h *Hub) Broadcast(message Message) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// Publish implementiert processor.Sink
func (h *Hub) Publish(ev session.FrameEvent, _ image.Image) {
	h.Broadcast(Message{Event: EventFrame, Frame: &ev})
}

// Clear implementiert processor.Sink
func (h *Hub) Clear() {
	h.Broadcast(Message{Event: EventCleared})
}
