// Package router demultiplexes inbound client envelopes to handler
// functions, enforcing the authenticate-before-anything gate, and owns the
// domain handlers behind it.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/vedant-vijay/TaskSync/pkg/directory"
	"github.com/vedant-vijay/TaskSync/pkg/protocol"
	"github.com/vedant-vijay/TaskSync/pkg/state"
)

// HandlerFunc processes one inbound payload for an authenticated session.
// A returned error is converted to an ERROR envelope for the originating
// connection only; it never reaches other connections.
type HandlerFunc func(ctx context.Context, sess *state.Session, payload json.RawMessage) error

type EventRouter struct {
	logger   *slog.Logger
	registry state.Registry
	presence *state.Presence
	store    directory.Store
	verifier directory.TokenVerifier
	handlers map[string]HandlerFunc
}

func NewEventRouter(logger *slog.Logger, reg state.Registry, presence *state.Presence, store directory.Store, verifier directory.TokenVerifier) *EventRouter {
	r := &EventRouter{
		logger:   logger.With(slog.String("component", "event_router")),
		registry: reg,
		presence: presence,
		store:    store,
		verifier: verifier,
	}
	r.handlers = map[string]HandlerFunc{
		protocol.TypeJoinProject:      r.handleJoinProject,
		protocol.TypeLeaveProject:     r.handleLeaveProject,
		protocol.TypeCreateTask:       r.handleCreateTask,
		protocol.TypeAssignTask:       r.handleAssignTask,
		protocol.TypeUpdateTaskStatus: r.handleUpdateTaskStatus,
		protocol.TypeAddComment:       r.handleAddComment,
		protocol.TypeStartViewingTask: r.handleStartViewingTask,
		protocol.TypeStopViewingTask:  r.handleStopViewingTask,
		protocol.TypeStartEditingTask: r.handleStartEditingTask,
		protocol.TypeStopEditingTask:  r.handleStopEditingTask,
	}
	return r
}

// Dispatch routes one inbound frame. Parse failures and handler errors are
// reported to the originating session; the connection stays open.
func (r *EventRouter) Dispatch(ctx context.Context, sess *state.Session, raw []byte) {
	if !gjson.ValidBytes(raw) {
		r.logger.Warn("Received malformed frame", slog.String("sessID", sess.ID.String()))
		r.sendError(sess, "Invalid message format or processing error", false)
		return
	}
	msgType := gjson.GetBytes(raw, "type").String()
	if msgType == "" {
		r.sendError(sess, "Invalid message format or processing error", false)
		return
	}

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.sendError(sess, "Invalid message format or processing error", false)
		return
	}

	// Authentication must happen first.
	if msgType == protocol.TypeAuthenticate {
		r.handleAuthenticate(ctx, sess, env.Payload)
		return
	}
	if !sess.Authenticated {
		r.sendError(sess, "Please authenticate first", true)
		return
	}

	handler, ok := r.handlers[msgType]
	if !ok {
		r.sendError(sess, "Unknown message type: "+msgType, false)
		return
	}

	if err := handler(ctx, sess, env.Payload); err != nil {
		var cerr *clientError
		if errors.As(err, &cerr) {
			if cerr.cause != nil {
				r.logger.Error("Handler failed",
					slog.String("type", msgType),
					slog.String("userID", sess.UserID),
					slog.Any("error", cerr.cause),
				)
			}
			r.sendError(sess, cerr.message, false)
			return
		}
		r.logger.Error("Handler failed",
			slog.String("type", msgType),
			slog.String("userID", sess.UserID),
			slog.Any("error", err),
		)
		r.sendError(sess, "Failed to process "+msgType, false)
	}
}

func (r *EventRouter) sendError(sess *state.Session, message string, requiresAuth bool) {
	sess.Peer.Send(protocol.MustEncode(protocol.TypeError, protocol.ErrorPayload{
		Message:      message,
		RequiresAuth: requiresAuth,
	}))
}

// clientError carries the message reported back to the originating
// connection. When cause is set, the detail is logged server-side and only
// the public message crosses the wire.
type clientError struct {
	message string
	cause   error
}

func (e *clientError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *clientError) Unwrap() error { return e.cause }

// errClient reports a validation or authorization failure to the caller.
func errClient(message string) error {
	return &clientError{message: message}
}

// errInternal reports a generic failure to the caller and logs cause.
func errInternal(message string, cause error) error {
	return &clientError{message: message, cause: cause}
}
