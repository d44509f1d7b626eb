package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vedant-vijay/TaskSync/pkg/protocol"
	"github.com/vedant-vijay/TaskSync/pkg/state"
)

func (r *EventRouter) handleJoinProject(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	var req protocol.JoinProjectPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ProjectID == "" {
		return errClient("Project ID is required")
	}

	isMember, err := r.store.IsMember(ctx, req.ProjectID, sess.UserID)
	if err != nil {
		return errInternal("Failed to join project", err)
	}
	if !isMember {
		return errClient("You are not a member of this project")
	}

	if err := r.registry.JoinRoom(sess.UserID, req.ProjectID); err != nil {
		return errInternal("Failed to join project", err)
	}

	snap, err := r.store.ProjectSnapshot(ctx, req.ProjectID)
	if err != nil {
		return errInternal("Failed to join project", err)
	}

	members := make([]protocol.UserRef, 0, len(snap.Members))
	byID := make(map[string]*protocol.UserRef, len(snap.Members))
	for _, m := range snap.Members {
		ref := protocol.NewUserRef(m.ID, m.Name)
		members = append(members, ref)
		stored := ref
		byID[m.ID] = &stored
	}
	tasks := make([]protocol.TaskPayload, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		tasks = append(tasks, taskPayload(t, func(id string) *protocol.UserRef { return byID[id] }))
	}

	sess.Peer.Send(protocol.MustEncode(protocol.TypeProjectJoined, protocol.ProjectJoinedPayload{
		ProjectID: req.ProjectID,
		Project: protocol.ProjectPayload{
			ID:          snap.Project.ID,
			Name:        snap.Project.Name,
			Description: snap.Project.Description,
			LeaderID:    snap.Project.LeaderID,
		},
		Members:     members,
		Tasks:       tasks,
		OnlineUsers: r.registry.RoomMembers(req.ProjectID),
		Timestamp:   protocol.Timestamp(),
	}))

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeUserConnected, protocol.UserConnectedPayload{
		User:      protocol.NewUserRef(sess.UserID, sess.UserName),
		ProjectID: req.ProjectID,
		Timestamp: protocol.Timestamp(),
	}), sess.UserID)

	r.logger.Info("User joined project",
		slog.String("userID", sess.UserID),
		slog.String("projectID", req.ProjectID),
	)
	return nil
}

func (r *EventRouter) handleLeaveProject(_ context.Context, sess *state.Session, payload json.RawMessage) error {
	var req protocol.LeaveProjectPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ProjectID == "" {
		return errClient("Project ID is required")
	}

	if err := r.registry.LeaveRoom(sess.UserID, req.ProjectID); err != nil {
		return errInternal("Failed to leave project", err)
	}

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeUserDisconnected, protocol.UserDisconnectedPayload{
		UserID:    sess.UserID,
		UserName:  sess.UserName,
		ProjectID: req.ProjectID,
		Timestamp: protocol.Timestamp(),
	}), sess.UserID)

	sess.Peer.Send(protocol.MustEncode(protocol.TypeProjectLeft, protocol.ProjectLeftPayload{
		ProjectID: req.ProjectID,
	}))

	r.logger.Info("User left project",
		slog.String("userID", sess.UserID),
		slog.String("projectID", req.ProjectID),
	)
	return nil
}
