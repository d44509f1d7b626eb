package state

import (
	"github.com/google/uuid"
)

// Registry tracks which users are connected and which rooms they are active
// in. At most one session per user is addressable at a time; Register
// displaces any previous session for the same user and returns it so the
// caller can close it.
type Registry interface {
	// --- Connection Lifecycle ---
	Register(sess *Session) (displaced *Session)
	// Unregister removes the user's session and every room membership. It is
	// a no-op when sessID no longer matches the registered session, so a
	// displaced connection's teardown cannot evict its replacement.
	Unregister(userID string, sessID uuid.UUID) error
	Lookup(userID string) (*Session, bool)

	// --- Room Membership ---
	// JoinRoom adds the user to a room, creating the room on first join.
	// Joining a room twice is a no-op.
	JoinRoom(userID, roomID string) error
	// LeaveRoom removes the user from a room; the room is deleted when its
	// member set becomes empty. Leaving a room the user is not in is a no-op.
	LeaveRoom(userID, roomID string) error
	RoomMembers(roomID string) []string
	RoomsOf(userID string) []string

	// --- Delivery ---
	// Broadcast sends frame to every member of the room except excludeUserID
	// (pass "" to exclude nobody). Members whose session is gone are skipped.
	// Returns the number of peers the frame was handed to.
	Broadcast(roomID string, frame []byte, excludeUserID string) int
	// SendTo is best-effort unicast; false means the user had no live session.
	SendTo(userID string, frame []byte) bool

	Stats() Stats
}
