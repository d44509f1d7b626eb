package directory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. The production deployment reaches a
// document database through the same interface; this implementation backs the
// dev binary and the test suite.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User
	projects map[string]*Project
	members  map[string]map[string]struct{} // projectID -> userIDs
	tasks    map[string]*Task
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		projects: make(map[string]*Project),
		members:  make(map[string]map[string]struct{}),
		tasks:    make(map[string]*Task),
	}
}

// NewObjectID produces a 24-hex-character identifier in the store's native
// key format.
func NewObjectID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// SeedUser inserts a user record. Returns the user for convenience.
func (s *MemoryStore) SeedUser(u User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := u
	s.users[u.ID] = &stored
	return &stored
}

// SeedProject inserts a project and its member list. The leader is always a
// member.
func (s *MemoryStore) SeedProject(p Project, memberIDs ...string) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := p
	s.projects[p.ID] = &stored
	set := make(map[string]struct{}, len(memberIDs)+1)
	if p.LeaderID != "" {
		set[p.LeaderID] = struct{}{}
	}
	for _, id := range memberIDs {
		set[id] = struct{}{}
	}
	s.members[p.ID] = set
	return &stored
}

func (s *MemoryStore) IsMember(_ context.Context, projectID, userID string) (bool, error) {
	if projectID == "" || userID == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.members[projectID]
	if !ok {
		return false, nil
	}
	_, ok = set[userID]
	return ok, nil
}

func (s *MemoryStore) IsLeader(_ context.Context, projectID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return false, nil
	}
	return p.LeaderID == userID, nil
}

func (s *MemoryStore) FindUserByID(_ context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) CreateTask(_ context.Context, t NewTask) (*Task, error) {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if !ValidStatus(t.Status) {
		return nil, fmt.Errorf("%w: %q", ErrBadStatus, t.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	task := &Task{
		ID:          NewObjectID(),
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   t.ProjectID,
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		Status:      t.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[task.ID] = task
	copied := *task
	return &copied, nil
}

func (s *MemoryStore) AssignTask(_ context.Context, taskID, userID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	task.AssignedTo = userID
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateTaskStatus(_ context.Context, taskID string, status Status, _ string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrBadStatus, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AddComment(_ context.Context, taskID, userID, text string) (*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	comment := Comment{
		ID:        NewObjectID(),
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	task.Comments = append(task.Comments, comment)
	task.UpdatedAt = comment.CreatedAt
	return &comment, nil
}

func (s *MemoryStore) AddViewer(_ context.Context, taskID, userID string) error {
	return s.presenceUpdate(taskID, userID, true, false)
}

func (s *MemoryStore) RemoveViewer(_ context.Context, taskID, userID string) error {
	return s.presenceUpdate(taskID, userID, false, false)
}

func (s *MemoryStore) AddEditor(_ context.Context, taskID, userID string) error {
	return s.presenceUpdate(taskID, userID, true, true)
}

func (s *MemoryStore) RemoveEditor(_ context.Context, taskID, userID string) error {
	return s.presenceUpdate(taskID, userID, false, true)
}

func (s *MemoryStore) presenceUpdate(taskID, userID string, add, editor bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	target := &task.ActiveViewers
	if editor {
		target = &task.ActiveEditors
	}
	if add {
		for _, id := range *target {
			if id == userID {
				return nil
			}
		}
		*target = append(*target, userID)
		return nil
	}
	out := (*target)[:0]
	for _, id := range *target {
		if id != userID {
			out = append(out, id)
		}
	}
	*target = out
	return nil
}

func (s *MemoryStore) ProjectSnapshot(_ context.Context, projectID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	snap := &Snapshot{Project: *p}
	for userID := range s.members[projectID] {
		if u, ok := s.users[userID]; ok {
			snap.Members = append(snap.Members, *u)
		}
	}
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			snap.Tasks = append(snap.Tasks, *t)
		}
	}
	return snap, nil
}
