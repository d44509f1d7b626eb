package state

import "sync"

// presenceEntry holds the transient viewer/editor sets for one task, plus the
// room the task belongs to so disconnect cleanup can address its broadcasts.
type presenceEntry struct {
	roomID  string
	viewers map[string]struct{}
	editors map[string]struct{}
}

// Cleared reports one presence membership removed by ClearUser.
type Cleared struct {
	TaskID string
	RoomID string
	Editor bool
}

// Presence tracks which users have a task's detail view open. It is advisory
// state only; it never gates a mutation. Entries are created on first
// reference and deleted when both sets empty.
type Presence struct {
	mu      sync.Mutex
	entries map[string]*presenceEntry
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]*presenceEntry)}
}

func (p *Presence) AddViewer(taskID, roomID, userID string) {
	p.add(taskID, roomID, userID, false)
}

func (p *Presence) AddEditor(taskID, roomID, userID string) {
	p.add(taskID, roomID, userID, true)
}

func (p *Presence) add(taskID, roomID, userID string, editor bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[taskID]
	if !ok {
		entry = &presenceEntry{
			roomID:  roomID,
			viewers: make(map[string]struct{}),
			editors: make(map[string]struct{}),
		}
		p.entries[taskID] = entry
	}
	if editor {
		entry.editors[userID] = struct{}{}
	} else {
		entry.viewers[userID] = struct{}{}
	}
}

func (p *Presence) RemoveViewer(taskID, userID string) {
	p.remove(taskID, userID, false)
}

func (p *Presence) RemoveEditor(taskID, userID string) {
	p.remove(taskID, userID, true)
}

func (p *Presence) remove(taskID, userID string, editor bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[taskID]
	if !ok {
		return
	}
	if editor {
		delete(entry.editors, userID)
	} else {
		delete(entry.viewers, userID)
	}
	if len(entry.viewers) == 0 && len(entry.editors) == 0 {
		delete(p.entries, taskID)
	}
}

// Viewers returns the user ids currently viewing the task.
func (p *Presence) Viewers(taskID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[taskID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.viewers))
	for id := range entry.viewers {
		out = append(out, id)
	}
	return out
}

// Editors returns the user ids currently editing the task.
func (p *Presence) Editors(taskID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[taskID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.editors))
	for id := range entry.editors {
		out = append(out, id)
	}
	return out
}

// ClearUser removes the user from every entry and reports exactly which
// memberships were cleared, so the caller can emit the matching stop events
// during teardown.
func (p *Presence) ClearUser(userID string) []Cleared {
	p.mu.Lock()
	defer p.mu.Unlock()
	var cleared []Cleared
	for taskID, entry := range p.entries {
		if _, ok := entry.viewers[userID]; ok {
			delete(entry.viewers, userID)
			cleared = append(cleared, Cleared{TaskID: taskID, RoomID: entry.roomID})
		}
		if _, ok := entry.editors[userID]; ok {
			delete(entry.editors, userID)
			cleared = append(cleared, Cleared{TaskID: taskID, RoomID: entry.roomID, Editor: true})
		}
		if len(entry.viewers) == 0 && len(entry.editors) == 0 {
			delete(p.entries, taskID)
		}
	}
	return cleared
}
