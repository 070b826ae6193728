package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/weiawesome/fin-dashboard/internal/chat"
	"github.com/weiawesome/fin-dashboard/pkg/log"
)

// Hub tracks websocket clients and the destinations they subscribe to.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	topics     map[string]map[string]*Client // destination -> clientID -> client
	unregister chan *Client
	publish    chan *outbound
	done       chan struct{}
	stopped    bool
	mu         sync.RWMutex
}

type outbound struct {
	Destination string
	Data        []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		topics:     make(map[string]map[string]*Client),
		unregister: make(chan *Client),
		publish:    make(chan *outbound, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and deliveries until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for id, client := range h.clients {
				delete(h.clients, id)
				client.closeSend()
			}
			h.topics = make(map[string]map[string]*Client)
			h.mu.Unlock()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for dest, subs := range h.topics {
					delete(subs, client.ID)
					if len(subs) == 0 {
						delete(h.topics, dest)
					}
				}
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str("client_id", client.ID).Msg("client unregistered")

		case msg := <-h.publish:
			h.mu.RLock()
			for _, client := range h.topics[msg.Destination] {
				select {
				case client.Send <- msg.Data:
				default:
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds client to the hub. It returns false once the hub stopped;
// the caller then owns closing the connection.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.clients[client.ID] = client
	l := log.L()
	l.Debug().Str("client_id", client.ID).Msg("client registered")
	return true
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds client to destination.
func (h *Hub) Subscribe(client *Client, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if _, ok := h.topics[destination]; !ok {
		h.topics[destination] = make(map[string]*Client)
	}
	h.topics[destination][client.ID] = client
	l := log.L()
	l.Debug().Str("client_id", client.ID).Str(log.FieldDestination, destination).Msg("client subscribed")
}

// Unsubscribe removes client from destination.
func (h *Hub) Unsubscribe(client *Client, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.topics[destination]; ok {
		delete(subs, client.ID)
		if len(subs) == 0 {
			delete(h.topics, destination)
		}
	}
}

// Publish delivers f as a MESSAGE frame to every subscriber of destination.
func (h *Hub) Publish(destination string, f chat.Frame) error {
	f.Destination = destination
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	select {
	case h.publish <- &outbound{Destination: destination, Data: data}:
	case <-h.done:
	}
	return nil
}

// SubscriberCount returns the number of clients subscribed to destination.
func (h *Hub) SubscriberCount(destination string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[destination])
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
