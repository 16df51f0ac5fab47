// Package sse provides Server-Sent Events client management for real-time communication.
package sse

import (
	"sync"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/rs/zerolog"
)

var sseLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sseLogger = l
}

// ClientBuffer is how many undelivered messages a slow client may hold before new ones drop.
const ClientBuffer = 32

// Message is one SSE frame. An empty Event is sent as the default "message" event.
type Message struct {
	Event string
	Data  string
}

type Client struct {
	Msg        chan Message
	DocumentID model.DocumentID
}

func NewClient(id model.DocumentID) *Client {
	return &Client{
		Msg:        make(chan Message, ClientBuffer),
		DocumentID: id,
	}
}

type Clients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewClients() *Clients {
	return &Clients{
		clients: make(map[*Client]bool),
	}
}

func (s *Clients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *Clients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clients[client] {
		return
	}
	delete(s.clients, client)
	close(client.Msg)
}

func (s *Clients) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends msg to every client subscribed to id. An empty id reaches all clients.
// Full clients miss the message instead of blocking the sender.
func (s *Clients) Broadcast(id model.DocumentID, msg Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if id != "" && client.DocumentID != id {
			continue
		}
		select {
		case client.Msg <- msg:
		default:
			sseLogger.Warn().Str("document_id", string(client.DocumentID)).Str("event", msg.Event).Msg("Dropping event for slow client")
		}
	}
}
