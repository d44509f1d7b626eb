package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/vedant-vijay/TaskSync/pkg/protocol"
	"github.com/vedant-vijay/TaskSync/pkg/state"
)

// handleAuthenticate is the only handler reachable before authentication.
// Failures leave the session unauthenticated so the peer may retry.
func (r *EventRouter) handleAuthenticate(ctx context.Context, sess *state.Session, payload json.RawMessage) {
	var req protocol.AuthenticatePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.Token == "" {
		r.sendAuthError(sess, "Token is required")
		return
	}

	userID, err := r.verifier.Verify(ctx, req.Token)
	if err != nil {
		r.logger.Warn("Token verification failed", slog.Any("error", err))
		r.sendAuthError(sess, "Invalid or expired token")
		return
	}

	user, err := r.store.FindUserByID(ctx, userID)
	if err != nil {
		r.logger.Warn("Authenticated token for unknown user",
			slog.String("userID", userID),
			slog.Any("error", err),
		)
		r.sendAuthError(sess, "User not found")
		return
	}

	// One live connection per identity: a newer authentication displaces the
	// previous session rather than silently overwriting it. The old session
	// is torn down first so its rooms see the usual disconnect notices, then
	// its transport is closed. A repeat authenticate on the same session is
	// not a displacement; it just gets a fresh AUTHENTICATED reply.
	if existing, ok := r.registry.Lookup(user.ID); ok && existing.ID != sess.ID {
		r.logger.Info("Displacing previous session for user",
			slog.String("userID", user.ID),
			slog.String("oldSessID", existing.ID.String()),
		)
		r.HandleDisconnect(existing)
		existing.Peer.Close(errors.New("replaced by a newer authenticated connection"))
	}

	sess.SetIdentity(user)
	if displaced := r.registry.Register(sess); displaced != nil {
		// Lost a race with another authentication for the same user.
		displaced.Peer.Close(errors.New("replaced by a newer authenticated connection"))
	}

	sess.Peer.Send(protocol.MustEncode(protocol.TypeAuthenticated, protocol.AuthenticatedPayload{
		UserID:    user.ID,
		Name:      user.Name,
		Role:      string(user.Role),
		Timestamp: protocol.Timestamp(),
	}))
	r.logger.Info("User authenticated",
		slog.String("userID", user.ID),
		slog.String("name", user.Name),
	)
}

func (r *EventRouter) sendAuthError(sess *state.Session, message string) {
	sess.Peer.Send(protocol.MustEncode(protocol.TypeAuthError, protocol.AuthErrorPayload{
		Message: message,
	}))
}
