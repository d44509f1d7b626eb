package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vedant-vijay/TaskSync/pkg/state"
)

// InMemoryRegistry is the single-process connection registry. It is
// constructed once at gateway start and passed by reference to the router and
// the lifecycle manager; tests construct isolated instances per case.
type InMemoryRegistry struct {
	mu        sync.RWMutex
	sessions  map[string]*state.Session       // userID -> live session
	rooms     map[string]map[string]struct{}  // roomID -> member userIDs
	userRooms map[string]map[string]struct{}  // userID -> joined roomIDs

	logger *slog.Logger
}

var _ state.Registry = (*InMemoryRegistry)(nil)

func NewInMemoryRegistry(logger *slog.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		sessions:  make(map[string]*state.Session),
		rooms:     make(map[string]map[string]struct{}),
		userRooms: make(map[string]map[string]struct{}),
		logger:    logger.With(slog.String("component", "connection_registry")),
	}
}

func (r *InMemoryRegistry) Register(sess *state.Session) *state.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	displaced := r.sessions[sess.UserID]
	if displaced != nil && displaced.ID == sess.ID {
		return nil
	}
	r.sessions[sess.UserID] = sess
	r.logger.Debug("Session registered",
		slog.String("userID", sess.UserID),
		slog.String("sessID", sess.ID.String()),
	)
	return displaced
}

func (r *InMemoryRegistry) Unregister(userID string, sessID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok || sess.ID != sessID {
		// Already gone, or the user re-registered on a newer connection.
		return nil
	}
	delete(r.sessions, userID)
	for roomID := range r.userRooms[userID] {
		r.removeFromRoom(userID, roomID)
	}
	delete(r.userRooms, userID)
	r.logger.Debug("Session unregistered", slog.String("userID", userID))
	return nil
}

func (r *InMemoryRegistry) Lookup(userID string) (*state.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[userID]
	return sess, ok
}

func (r *InMemoryRegistry) JoinRoom(userID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[userID]; !ok {
		return errors.New("cannot join room: user has no registered session")
	}
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[roomID] = room
	}
	room[userID] = struct{}{}

	joined, ok := r.userRooms[userID]
	if !ok {
		joined = make(map[string]struct{})
		r.userRooms[userID] = joined
	}
	joined[roomID] = struct{}{}

	r.logger.Debug("User joined room", slog.String("userID", userID), slog.String("roomID", roomID))
	return nil
}

func (r *InMemoryRegistry) LeaveRoom(userID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromRoom(userID, roomID)
	if joined, ok := r.userRooms[userID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.userRooms, userID)
		}
	}
	r.logger.Debug("User left room", slog.String("userID", userID), slog.String("roomID", roomID))
	return nil
}

// removeFromRoom drops the membership link and deletes the room when empty.
// Caller holds the write lock.
func (r *InMemoryRegistry) removeFromRoom(userID, roomID string) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
		r.logger.Debug("Removed empty room", slog.String("roomID", roomID))
	}
}

func (r *InMemoryRegistry) RoomMembers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(room))
	for userID := range room {
		members = append(members, userID)
	}
	sort.Strings(members)
	return members
}

func (r *InMemoryRegistry) RoomsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined, ok := r.userRooms[userID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(joined))
	for roomID := range joined {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *InMemoryRegistry) Broadcast(roomID string, frame []byte, excludeUserID string) int {
	// Snapshot the recipients under the read lock, deliver outside it so a
	// slow peer cannot hold up registry mutations.
	r.mu.RLock()
	peers := make([]state.Peer, 0, len(r.rooms[roomID]))
	for userID := range r.rooms[roomID] {
		if userID == excludeUserID {
			continue
		}
		if sess, ok := r.sessions[userID]; ok {
			peers = append(peers, sess.Peer)
		}
	}
	r.mu.RUnlock()

	for _, peer := range peers {
		peer.Send(frame)
	}
	return len(peers)
}

func (r *InMemoryRegistry) SendTo(userID string, frame []byte) bool {
	r.mu.RLock()
	sess, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	sess.Peer.Send(frame)
	return true
}

func (r *InMemoryRegistry) Stats() state.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := state.Stats{ActiveConnections: len(r.sessions)}
	for roomID, members := range r.rooms {
		stats.Rooms = append(stats.Rooms, state.RoomStat{RoomID: roomID, MemberCount: len(members)})
	}
	sort.Slice(stats.Rooms, func(i, j int) bool { return stats.Rooms[i].RoomID < stats.Rooms[j].RoomID })
	return stats
}
