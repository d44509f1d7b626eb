package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vedant-vijay/TaskSync/pkg/directory"
	"github.com/vedant-vijay/TaskSync/pkg/protocol"
	"github.com/vedant-vijay/TaskSync/pkg/state"
)

func (r *EventRouter) handleCreateTask(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	var req protocol.CreateTaskPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.Title == "" || req.ProjectID == "" {
		return errClient("Title and project ID are required")
	}

	isMember, err := r.store.IsMember(ctx, req.ProjectID, sess.UserID)
	if err != nil {
		return errInternal("Failed to create task", err)
	}
	if !isMember {
		return errClient("Not a member of this project")
	}

	status := directory.StatusTodo
	if req.Status != "" {
		status = directory.Status(req.Status)
		if !directory.ValidStatus(status) {
			return errClient("Invalid status")
		}
	}

	assignedTo := ""
	if !isUnassign(req.AssignedTo) {
		if !validObjectID(req.AssignedTo) {
			return errClient("Invalid user ID format for assignment")
		}
		assigneeIsMember, err := r.store.IsMember(ctx, req.ProjectID, req.AssignedTo)
		if err != nil {
			return errInternal("Failed to create task", err)
		}
		if !assigneeIsMember {
			return errClient("Assigned user is not a member of this project")
		}
		assignedTo = req.AssignedTo
	}

	task, err := r.store.CreateTask(ctx, directory.NewTask{
		Title:       req.Title,
		Description: req.Description,
		ProjectID:   req.ProjectID,
		CreatedBy:   sess.UserID,
		AssignedTo:  assignedTo,
		Status:      status,
	})
	if err != nil {
		return errInternal("Failed to create task", err)
	}

	var assignee *protocol.UserRef
	if task.AssignedTo != "" {
		user, err := r.store.FindUserByID(ctx, task.AssignedTo)
		if err != nil {
			return errInternal("Failed to create task", err)
		}
		ref := protocol.NewUserRef(user.ID, user.Name)
		assignee = &ref
	}

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskCreated, protocol.TaskCreatedPayload{
		Task:      taskPayload(*task, func(string) *protocol.UserRef { return assignee }),
		CreatedBy: actorRef(sess.UserID, sess.UserName),
		Timestamp: protocol.Timestamp(),
	}), "")

	r.logger.Info("Task created",
		slog.String("taskID", task.ID),
		slog.String("projectID", req.ProjectID),
		slog.String("userID", sess.UserID),
	)
	return nil
}

func (r *EventRouter) handleAssignTask(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	var req protocol.AssignTaskPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.TaskID == "" || req.ProjectID == "" {
		return errClient("Task ID and project ID are required")
	}

	isMember, err := r.store.IsMember(ctx, req.ProjectID, sess.UserID)
	if err != nil {
		return errInternal("Failed to assign task", err)
	}
	if !isMember {
		return errClient("Not authorized")
	}

	// Unassignment is recognized before format validation, so an empty or
	// null-ish assignee never trips the id-format check.
	if isUnassign(req.AssignedTo) {
		if err := r.store.AssignTask(ctx, req.TaskID, "", sess.UserID); err != nil {
			return errInternal("Failed to assign task", err)
		}
		r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskAssigned, protocol.TaskAssignedPayload{
			TaskID:     req.TaskID,
			AssignedTo: nil,
			AssignedBy: actorRef(sess.UserID, sess.UserName),
			Timestamp:  protocol.Timestamp(),
		}), "")
		r.logger.Info("Task unassigned",
			slog.String("taskID", req.TaskID),
			slog.String("userID", sess.UserID),
		)
		return nil
	}

	if !validObjectID(req.AssignedTo) {
		return errClient("Invalid user ID format")
	}
	assigneeIsMember, err := r.store.IsMember(ctx, req.ProjectID, req.AssignedTo)
	if err != nil {
		return errInternal("Failed to assign task", err)
	}
	if !assigneeIsMember {
		return errClient("Assigned user is not a member of this project")
	}

	if err := r.store.AssignTask(ctx, req.TaskID, req.AssignedTo, sess.UserID); err != nil {
		return errInternal("Failed to assign task", err)
	}
	assignee, err := r.store.FindUserByID(ctx, req.AssignedTo)
	if err != nil {
		return errInternal("Failed to assign task", err)
	}
	ref := protocol.NewUserRef(assignee.ID, assignee.Name)

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskAssigned, protocol.TaskAssignedPayload{
		TaskID:     req.TaskID,
		AssignedTo: &ref,
		AssignedBy: actorRef(sess.UserID, sess.UserName),
		Timestamp:  protocol.Timestamp(),
	}), "")

	r.logger.Info("Task assigned",
		slog.String("taskID", req.TaskID),
		slog.String("assignedTo", req.AssignedTo),
		slog.String("userID", sess.UserID),
	)
	return nil
}

func (r *EventRouter) handleUpdateTaskStatus(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	var req protocol.UpdateTaskStatusPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.TaskID == "" || req.Status == "" || req.ProjectID == "" {
		return errClient("Task ID, status, and project ID are required")
	}

	status := directory.Status(req.Status)
	if !directory.ValidStatus(status) {
		return errClient("Invalid status")
	}

	isMember, err := r.store.IsMember(ctx, req.ProjectID, sess.UserID)
	if err != nil {
		return errInternal("Failed to update task status", err)
	}
	if !isMember {
		return errClient("Not authorized")
	}

	if err := r.store.UpdateTaskStatus(ctx, req.TaskID, status, sess.UserID); err != nil {
		return errInternal("Failed to update task status", err)
	}

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskStatusUpdated, protocol.TaskStatusUpdatedPayload{
		TaskID:    req.TaskID,
		Status:    req.Status,
		UpdatedBy: actorRef(sess.UserID, sess.UserName),
		Timestamp: protocol.Timestamp(),
	}), "")

	r.logger.Info("Task status updated",
		slog.String("taskID", req.TaskID),
		slog.String("status", req.Status),
		slog.String("userID", sess.UserID),
	)
	return nil
}

func (r *EventRouter) handleAddComment(ctx context.Context, sess *state.Session, payload json.RawMessage) error {
	var req protocol.AddCommentPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.TaskID == "" || req.Text == "" || req.ProjectID == "" {
		return errClient("Task ID, comment text, and project ID are required")
	}

	isMember, err := r.store.IsMember(ctx, req.ProjectID, sess.UserID)
	if err != nil {
		return errInternal("Failed to add comment", err)
	}
	if !isMember {
		return errClient("Not authorized")
	}

	comment, err := r.store.AddComment(ctx, req.TaskID, sess.UserID, req.Text)
	if err != nil {
		return errInternal("Failed to add comment", err)
	}

	r.registry.Broadcast(req.ProjectID, protocol.MustEncode(protocol.TypeTaskCommentAdded, protocol.TaskCommentAddedPayload{
		TaskID: req.TaskID,
		Comment: protocol.CommentPayload{
			ID:        comment.ID,
			User:      protocol.NewUserRef(sess.UserID, sess.UserName),
			Text:      comment.Text,
			CreatedAt: comment.CreatedAt.UTC().Format(time.RFC3339),
		},
		Timestamp: protocol.Timestamp(),
	}), "")

	r.logger.Info("Comment added",
		slog.String("taskID", req.TaskID),
		slog.String("userID", sess.UserID),
	)
	return nil
}
