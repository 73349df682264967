// Package server coordinates room membership, message fan-out, and
// connection cleanup for the Veilchat relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub is the process-wide room registry. It tracks which clients belong to
// which room and fans broadcast payloads out to every current member of the
// target room. Rooms are created implicitly on first join and removed when
// the last member leaves.
type Hub struct {
	log        *slog.Logger
	rooms      map[string]map[*Client]bool
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance. The returned Hub is
// ready to manage connections once Run is started in its own goroutine.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop, handling room joins, leaves, and
// payload broadcasting. It should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			h.handleJoin(client)

		case client := <-h.unregister:
			h.handleLeave(client)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// handleJoin adds a client to its room's member set, creating the room entry
// if absent, queues the system notice for that client alone, and launches the
// client's pump goroutines. A second registration of the same client re-affirms
// membership without restarting the pumps.
func (h *Hub) handleJoin(client *Client) {
	h.mutex.Lock()
	members := h.rooms[client.room]
	if members == nil {
		members = make(map[*Client]bool)
		h.rooms[client.room] = members
	}
	if members[client] {
		h.mutex.Unlock()
		return
	}
	client.closed = false
	members[client] = true
	memberCount := len(members)
	h.mutex.Unlock()

	connectedClients.Inc()
	h.log.Info("client joined", "room", client.room, "clientId", client.id, "addr", client.addr, "members", memberCount)

	// The notice targets the single new connection and bypasses broadcast,
	// so no other room member ever sees it.
	select {
	case client.send <- systemNotice():
	default:
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// handleLeave removes a client from its room. Leaving a room the client is
// not a member of is a no-op, which covers disconnects that fire after an
// already-failed join.
func (h *Hub) handleLeave(client *Client) {
	h.mutex.Lock()
	members, ok := h.rooms[client.room]
	if !ok || !members[client] {
		h.mutex.Unlock()
		return
	}
	delete(members, client)
	client.closed = true
	memberCount := len(members)
	if memberCount == 0 {
		delete(h.rooms, client.room)
	}
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	connectedClients.Dec()
	h.log.Info("client left", "room", client.room, "clientId", client.id, "members", memberCount)
	if memberCount == 0 {
		h.log.Debug("room removed", "room", client.room)
	}
}

// handleBroadcast delivers a payload to every current member of the target
// room, the sender included. Delivery to each member is independent: a member
// whose send queue is full is removed rather than allowed to stall the rest.
// Broadcasting to a room with no members is a silent no-op.
func (h *Hub) handleBroadcast(msg BroadcastMessage) {
	members := h.roomSnapshot(msg.Room)
	if len(members) == 0 {
		return
	}

	var clientsToRemove []*Client
	for _, client := range members {
		if !h.safeSend(client, msg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	messagesRelayed.Inc()
	h.log.Debug("broadcast", "room", msg.Room, "members", len(members), "bytes", len(msg.Payload))
	h.removeFailedClients(clientsToRemove)
}

// roomSnapshot returns a thread-safe copy of a room's member set so that
// delivery never iterates the live map while joins and leaves mutate it.
func (h *Hub) roomSnapshot(room string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := h.rooms[room]
	snapshot := make([]*Client, 0, len(members))
	for client := range members {
		snapshot = append(snapshot, client)
	}
	return snapshot
}

// safeSend queues a payload on one member's send channel without blocking.
// It reports false when the member is gone or its queue is full.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the send so unregister cannot close the channel
	// mid-delivery.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members, ok := h.rooms[client.room]
	if !ok || !members[client] || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients drops members whose delivery failed and closes their
// channels. Failures here are absorbed; they never propagate to the sender.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		members, ok := h.rooms[client.room]
		if !ok || !members[client] {
			continue
		}
		delete(members, client)
		client.closed = true
		if len(members) == 0 {
			delete(h.rooms, client.room)
		}
		channelsToClose = append(channelsToClose, client.send)
		h.log.Warn("client removed due to full send buffer", "room", client.room, "clientId", client.id)
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
	deliveriesDropped.Add(float64(len(channelsToClose)))
	connectedClients.Sub(float64(len(channelsToClose)))
}

// Stats reports the number of active rooms and connected clients.
func (h *Hub) Stats() (rooms, clients int) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	rooms = len(h.rooms)
	for _, members := range h.rooms {
		clients += len(members)
	}
	return rooms, clients
}

// closeAllClients closes every active connection during shutdown.
func (h *Hub) closeAllClients() {
	h.mutex.Lock()
	var clients []*Client
	for _, members := range h.rooms {
		for client := range members {
			clients = append(clients, client)
		}
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("error closing client connection", "clientId", client.id, "err", err)
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")
	h.cancel()

	// Wait for Run() to drain.
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
