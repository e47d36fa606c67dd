package realtime

import (
	"log/slog"
	"sync"
)

// Hub is the per-process room membership index: a multimap from room key to
// live connections. It holds no authority over persisted state and is rebuilt
// from scratch as clients reconnect; in a multi-instance deployment each
// process's hub is a cache of "who is listening here" behind a shared bus.
type Hub struct {
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[*Conn]struct{}),
	}
}

// Join is idempotent; joining a room the connection is already in is a no-op.
// A disconnected connection cannot rejoin: its read pump may still be draining
// frames it read before the socket close landed, and re-admitting it would put
// a closed send queue back into the room.
func (h *Hub) Join(c *Conn, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	if _, ok := c.rooms[room]; ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave is idempotent; leaving a room the connection never joined is a no-op.
func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Conn, room string) {
	if _, ok := c.rooms[room]; !ok {
		return
	}
	delete(c.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Disconnect removes the connection from every room it joined, in O(rooms
// joined), and closes its outbound queue. Safe to call more than once.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	c.closed = true
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()

	c.closeOnce.Do(func() { close(c.send) })
}

// BroadcastEvent fans a full-state payload out to every connection in the
// room. Within a room, delivery order matches call order. A connection whose
// outbound queue is full is dropped rather than allowed to stall the room.
func (h *Hub) BroadcastEvent(room string, payload any) {
	h.broadcast(room, ServerFrame{Type: frameEvent, Room: room, Payload: payload})
}

// BroadcastDeleted sends a tombstone so clients evict local state for the
// entity instead of refreshing it.
func (h *Hub) BroadcastDeleted(room, entityID string) {
	h.broadcast(room, ServerFrame{Type: frameDeleted, Room: room, Payload: tombstone{ID: entityID}})
}

func (h *Hub) broadcast(room string, frame ServerFrame) {
	// Dropping re-enters the hub lock, so it happens after the enqueue pass.
	// Other recipients in the room are unaffected.
	for _, c := range h.enqueue(room, frame) {
		h.logger.Warn("realtime: dropping slow connection", "conn_id", c.ID, "user_id", c.UserID, "room", room)
		h.Disconnect(c)
		c.closeSocket()
	}
}

func (h *Hub) enqueue(room string, frame ServerFrame) (dropped []*Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			dropped = append(dropped, c)
		}
	}
	return dropped
}

// RoomSize reports current membership; used by tests and the health endpoint.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}
