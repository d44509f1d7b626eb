package router

import (
	"log/slog"

	"github.com/vedant-vijay/TaskSync/pkg/protocol"
	"github.com/vedant-vijay/TaskSync/pkg/state"
)

// HandleDisconnect propagates a closed connection to every room the peer was
// in: presence stop events first, then a disconnect notice per room, then the
// registry purge. It can be reached twice for one session, from the transport
// close handler and from displacement, possibly on different goroutines; the
// session's teardown claim ensures only the first caller propagates.
func (r *EventRouter) HandleDisconnect(sess *state.Session) {
	if !sess.Authenticated {
		return
	}
	if !sess.BeginTeardown() {
		return
	}

	for _, cleared := range r.presence.ClearUser(sess.UserID) {
		if cleared.Editor {
			r.registry.Broadcast(cleared.RoomID, protocol.MustEncode(protocol.TypeTaskEditorLeft, protocol.TaskPresenceLeftPayload{
				TaskID:    cleared.TaskID,
				UserID:    sess.UserID,
				Timestamp: protocol.Timestamp(),
			}), sess.UserID)
			continue
		}
		r.registry.Broadcast(cleared.RoomID, protocol.MustEncode(protocol.TypeTaskViewerLeft, protocol.TaskPresenceLeftPayload{
			TaskID:    cleared.TaskID,
			UserID:    sess.UserID,
			Timestamp: protocol.Timestamp(),
		}), sess.UserID)
	}

	for _, roomID := range r.registry.RoomsOf(sess.UserID) {
		r.registry.Broadcast(roomID, protocol.MustEncode(protocol.TypeUserDisconnected, protocol.UserDisconnectedPayload{
			UserID:    sess.UserID,
			UserName:  sess.UserName,
			ProjectID: roomID,
			Timestamp: protocol.Timestamp(),
		}), sess.UserID)
	}

	if err := r.registry.Unregister(sess.UserID, sess.ID); err != nil {
		r.logger.Error("Failed to unregister session",
			slog.String("userID", sess.UserID),
			slog.Any("error", err),
		)
	}
	r.logger.Info("User disconnected", slog.String("userID", sess.UserID))
}
