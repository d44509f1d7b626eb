package state

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vedant-vijay/TaskSync/pkg/directory"
)

// Peer is the send side of a live connection as the registry sees it. The
// gateway registers its transport connections behind this interface so tests
// can substitute in-memory peers.
type Peer interface {
	Send(msg []byte)
	Close(err error)
}

// Session is the gateway's record of one live connection. Identity fields are
// written exactly once, by the connection's own read goroutine when the peer
// authenticates, and are read-only afterwards. Room membership lives in the
// registry, not here.
type Session struct {
	ID        uuid.UUID
	Peer      Peer
	CreatedAt time.Time

	Authenticated bool
	UserID        string
	UserName      string
	Role          directory.Role

	torndown atomic.Bool
}

func NewSession(id uuid.UUID, peer Peer) *Session {
	return &Session{ID: id, Peer: peer, CreatedAt: time.Now()}
}

// BeginTeardown claims the session's one teardown. Exactly one caller gets
// true; any later or concurrent caller gets false and must not propagate the
// disconnect again.
func (s *Session) BeginTeardown() bool {
	return s.torndown.CompareAndSwap(false, true)
}

// SetIdentity marks the session authenticated with the resolved identity.
func (s *Session) SetIdentity(u *directory.User) {
	s.UserID = u.ID
	s.UserName = u.Name
	s.Role = u.Role
	s.Authenticated = true
}

// RoomStat is one entry of a registry statistics snapshot.
type RoomStat struct {
	RoomID      string
	MemberCount int
}

// Stats is a point-in-time view of registry occupancy.
type Stats struct {
	ActiveConnections int
	Rooms             []RoomStat
}
