// Package directory defines the external collaborators the gateway depends
// on: the token verifier that resolves bearer tokens to identities, and the
// store that owns project/task/user records and membership truth. The gateway
// never derives durable state on its own; the store is the single source of
// truth for mutation results.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotFound     = errors.New("not found")
	ErrBadStatus    = errors.New("invalid status")
)

// Role of a user within the system. Resolved once at authentication time and
// cached on the connection for its lifetime.
type Role string

const (
	RoleLeader Role = "LEADER"
	RoleMember Role = "MEMBER"
)

// Status is the closed task-status enum.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReview     Status = "REVIEW"
	StatusDone       Status = "DONE"
)

// ValidStatus reports whether s is one of the four allowed statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

type User struct {
	ID   string
	Name string
	Role Role
}

type Project struct {
	ID          string
	Name        string
	Description string
	LeaderID    string
}

type Comment struct {
	ID        string
	UserID    string
	Text      string
	CreatedAt time.Time
}

type Task struct {
	ID            string
	Title         string
	Description   string
	ProjectID     string
	CreatedBy     string
	AssignedTo    string // empty when unassigned
	Status        Status
	Comments      []Comment
	ActiveViewers []string
	ActiveEditors []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTask carries the fields a client may supply when creating a task.
type NewTask struct {
	Title       string
	Description string
	ProjectID   string
	CreatedBy   string
	AssignedTo  string
	Status      Status
}

// Snapshot is the full project view sent to a member on join.
type Snapshot struct {
	Project Project
	Members []User
	Tasks   []Task
}

// TokenVerifier validates an opaque bearer token and returns the user id it
// was issued for, or ErrInvalidToken.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Store is the persistence collaborator. Every method may block on I/O and
// honors context cancellation. IsMember must return false, not an error, when
// given malformed ids.
type Store interface {
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
	IsLeader(ctx context.Context, projectID, userID string) (bool, error)
	FindUserByID(ctx context.Context, userID string) (*User, error)

	CreateTask(ctx context.Context, t NewTask) (*Task, error)
	AssignTask(ctx context.Context, taskID, userID, actingUserID string) error
	UpdateTaskStatus(ctx context.Context, taskID string, status Status, actingUserID string) error
	AddComment(ctx context.Context, taskID, userID, text string) (*Comment, error)

	AddViewer(ctx context.Context, taskID, userID string) error
	RemoveViewer(ctx context.Context, taskID, userID string) error
	AddEditor(ctx context.Context, taskID, userID string) error
	RemoveEditor(ctx context.Context, taskID, userID string) error

	ProjectSnapshot(ctx context.Context, projectID string) (*Snapshot, error)
}
