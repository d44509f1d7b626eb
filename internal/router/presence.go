package router

import (
	"context"
	"encoding/json"

	"github.com/vedant-vijay/TaskSync/pkg/protocol"
	"github.com/vedant-vijay/TaskSync/pkg/state"
)

// Presence is advisory: it marks a user as having the task detail view open
// and never gates any mutation. Only authentication is required.

func (r *EventRouter) handleStartViewingTask(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	req, err := decodePresence(payload)
	if err != nil {
		return err
	}

	r.presence.AddViewer(req.TaskID, req.ProjectID, sess.UserID)
	if err := r.store.AddViewer(ctx, req.TaskID, sess.UserID); err != nil {
		return errInternal("Failed to update task presence", err)
	}

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskViewerJoined, protocol.TaskPresenceJoinedPayload{
		TaskID:    req.TaskID,
		User:      protocol.NewUserRef(sess.UserID, sess.UserName),
		Timestamp: protocol.Timestamp(),
	}), "")
	return nil
}

func (r *EventRouter) handleStopViewingTask(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	req, err := decodePresence(payload)
	if err != nil {
		return err
	}

	r.presence.RemoveViewer(req.TaskID, sess.UserID)
	if err := r.store.RemoveViewer(ctx, req.TaskID, sess.UserID); err != nil {
		return errInternal("Failed to update task presence", err)
	}

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskViewerLeft, protocol.TaskPresenceLeftPayload{
		TaskID:    req.TaskID,
		UserID:    sess.UserID,
		Timestamp: protocol.Timestamp(),
	}), "")
	return nil
}

func (r *EventRouter) handleStartEditingTask(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	req, err := decodePresence(payload)
	if err != nil {
		return err
	}

	r.presence.AddEditor(req.TaskID, req.ProjectID, sess.UserID)
	if err := r.store.AddEditor(ctx, req.TaskID, sess.UserID); err != nil {
		return errInternal("Failed to update task presence", err)
	}

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskEditorJoined, protocol.TaskPresenceJoinedPayload{
		TaskID:    req.TaskID,
		User:      protocol.NewUserRef(sess.UserID, sess.UserName),
		Timestamp: protocol.Timestamp(),
	}), "")
	return nil
}

func (r *EventRouter) handleStopEditingTask(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	req, err := decodePresence(payload)
	if err != nil {
		return err
	}

	r.presence.RemoveEditor(req.TaskID, sess.UserID)
	if err := r.store.RemoveEditor(ctx, req.TaskID, sess.UserID); err != nil {
		return errInternal("Failed to update task presence", err)
	}

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskEditorLeft, protocol.TaskPresenceLeftPayload{
		TaskID:    req.TaskID,
		UserID:    sess.UserID,
		Timestamp: protocol.Timestamp(),
	}), "")
	return nil
}

func decodePresence(payload json.RawMessage) (protocol.TaskPresencePayload, error) {
	var req protocol.TaskPresencePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.TaskID == "" || req.ProjectID == "" {
		return req, errClient("Task ID and project ID are required")
	}
	return req, nil
}
