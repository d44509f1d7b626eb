package router

import (
	"regexp"
	"time"

	"github.com/vedant-vijay/TaskSync/pkg/directory"
	"github.com/vedant-vijay/TaskSync/pkg/protocol"
)

// objectIDPattern matches the store's 24-hex identifier format. Client-supplied
// ids are validated against it before any lookup.
var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

func validObjectID(id string) bool {
	return objectIDPattern.MatchString(id)
}

// isUnassign reports whether an assignedTo value is one of the spellings
// clients send to mean "unassigned". Checked before format validation so a
// malformed-but-empty input never produces a false format error.
func isUnassign(assignedTo string) bool {
	switch assignedTo {
	case "", "null", "undefined":
		return true
	}
	return false
}

// taskPayload flattens a store task into its wire shape. The assignee is
// resolved to a full user reference through byID, which may return nil when
// the id is unknown.
func taskPayload(t directory.Task, byID func(string) *protocol.UserRef) protocol.TaskPayload {
	p := protocol.TaskPayload{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		ProjectID:     t.ProjectID,
		CreatedBy:     t.CreatedBy,
		Status:        string(t.Status),
		CommentCount:  len(t.Comments),
		ActiveViewers: t.ActiveViewers,
		ActiveEditors: t.ActiveEditors,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.ActiveViewers == nil {
		p.ActiveViewers = []string{}
	}
	if p.ActiveEditors == nil {
		p.ActiveEditors = []string{}
	}
	if t.AssignedTo != "" && byID != nil {
		p.AssignedTo = byID(t.AssignedTo)
	}
	return p
}

func actorRef(userID, userName string) protocol.ActorRef {
	return protocol.ActorRef{UserID: userID, UserName: userName}
}
