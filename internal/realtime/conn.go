package realtime

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 4 * 1024
	sendBufferSize = 32
)

// Conn is one live client connection. It joins rooms through the hub and
// receives fan-out frames over a buffered outbound queue drained by the
// write pump.
type Conn struct {
	ID     string
	UserID string

	hub  *Hub
	sock *websocket.Conn
	send chan ServerFrame

	// rooms and closed are guarded by the hub mutex. closed flips once, in
	// Disconnect, and permanently bars the connection from joining rooms.
	rooms  map[string]struct{}
	closed bool

	closeOnce sync.Once
	sockOnce  sync.Once
}

func (h *Hub) NewConn(userID string, sock *websocket.Conn) *Conn {
	c := &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    h,
		sock:   sock,
		send:   make(chan ServerFrame, sendBufferSize),
		rooms:  make(map[string]struct{}),
	}
	// Every authenticated connection listens on its own user room, matching
	// the client's join-on-connect behavior.
	h.Join(c, UserRoom(userID))
	return c
}

// Serve runs the read and write pumps until the peer goes away, then tears
// down all room membership in one place.
func (c *Conn) Serve() {
	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.closeSocket()
	}()

	c.sock.SetReadLimit(maxFrameBytes)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := c.sock.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("realtime: read error", "conn_id", c.ID, "err", err)
			}
			return
		}

		switch frame.Type {
		case frameJoin:
			if c.mayJoin(frame.Room) {
				c.hub.Join(c, frame.Room)
			} else {
				c.hub.logger.Warn("realtime: join refused", "conn_id", c.ID, "user_id", c.UserID, "room", frame.Room)
			}
		case frameLeave:
			c.hub.Leave(c, frame.Room)
		default:
			c.hub.logger.Debug("realtime: unknown frame type", "conn_id", c.ID, "type", frame.Type)
		}
	}
}

// mayJoin restricts user rooms to the connection's own: personal
// notification traffic is not subscribable by other users. Event and home
// rooms carry only payloads the client could fetch anyway.
func (c *Conn) mayJoin(room string) bool {
	switch {
	case room == HomeRoom:
		return true
	case strings.HasPrefix(room, "event:"):
		return len(room) > len("event:")
	case strings.HasPrefix(room, "user:"):
		return room == UserRoom(c.UserID)
	default:
		return false
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSocket()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.sock.WriteJSON(frame); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.logger.Debug("realtime: write error", "conn_id", c.ID, "err", err)
				}
				c.hub.Disconnect(c)
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Disconnect(c)
				return
			}
		}
	}
}

func (c *Conn) closeSocket() {
	if c.sock == nil {
		return
	}
	c.sockOnce.Do(func() { _ = c.sock.Close() })
}
