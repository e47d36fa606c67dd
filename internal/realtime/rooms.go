package realtime

// Room key namespace. A connection may join its own user room, any event
// room, and the shared home room.
const HomeRoom = "home"

func UserRoom(userID string) string { return "user:" + userID }

func EventRoom(readycheckID string) string { return "event:" + readycheckID }

// Frame types on the wire. Clients send join/leave; the server sends event
// (full current-state payload, never a delta) and deleted (tombstone: evict
// the local copy and navigate away if viewing it).
const (
	frameJoin    = "join"
	frameLeave   = "leave"
	frameEvent   = "event"
	frameDeleted = "deleted"
)

type clientFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type ServerFrame struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Payload any    `json:"payload,omitempty"`
}

type tombstone struct {
	ID string `json:"id"`
}
