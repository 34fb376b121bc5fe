// Package ws fans deployment log entries out to streaming subscribers.
package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages stream subscriptions by deployment ID.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	deploymentID string
	payload      []byte
}

type subscription struct {
	deploymentID string
	client       Subscriber
	ack          chan struct{}
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 64),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[sub.deploymentID]; !ok {
				h.clients[sub.deploymentID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.deploymentID][sub.client] = struct{}{}
			h.mu.Unlock()
			close(sub.ack)
		case sub := <-h.unreg:
			h.mu.Lock()
			h.remove(sub.deploymentID, sub.client)
			h.mu.Unlock()
			close(sub.ack)
		case msg := <-h.broadcast:
			h.deliver(msg)
		case <-h.done:
			h.mu.Lock()
			for id, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) deliver(msg message) {
	h.mu.RLock()
	clients := make([]Subscriber, 0, len(h.clients[msg.deploymentID]))
	for c := range h.clients[msg.deploymentID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.Send(msg.payload); err != nil {
			c.Close()
			h.mu.Lock()
			h.remove(msg.deploymentID, c)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(deploymentID string, client Subscriber) {
	if clients, ok := h.clients[deploymentID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, deploymentID)
		}
	}
}

// Register adds a client to a deployment stream.
func (h *Hub) Register(deploymentID string, client Subscriber) {
	h.send(h.register, deploymentID, client)
}

// Unregister removes a client.
func (h *Hub) Unregister(deploymentID string, client Subscriber) {
	h.send(h.unreg, deploymentID, client)
}

func (h *Hub) send(ch chan subscription, deploymentID string, client Subscriber) {
	sub := subscription{deploymentID: deploymentID, client: client, ack: make(chan struct{})}
	select {
	case ch <- sub:
		<-sub.ack
	case <-h.done:
	}
}

// Broadcast sends payload to all clients of a deployment. It never blocks
// the caller once the hub is closed.
func (h *Hub) Broadcast(deploymentID string, payload []byte) {
	select {
	case h.broadcast <- message{deploymentID: deploymentID, payload: payload}:
	case <-h.done:
	}
}

// Subscribers reports how many clients follow a deployment.
func (h *Hub) Subscribers(deploymentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[deploymentID])
}

// Close stops the dispatch loop and closes every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
