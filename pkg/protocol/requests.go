package protocol

// Client-emitted payload shapes. A JSON null or absent field decodes to the
// zero value, so handlers treat "" as "not supplied".

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type JoinProjectPayload struct {
	ProjectID string `json:"projectId"`
}

type LeaveProjectPayload struct {
	ProjectID string `json:"projectId"`
}

type CreateTaskPayload struct {
	ProjectID   string `json:"projectId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assignedTo"`
	Status      string `json:"status"`
}

type AssignTaskPayload struct {
	TaskID     string `json:"taskId"`
	ProjectID  string `json:"projectId"`
	AssignedTo string `json:"assignedTo"`
}

type UpdateTaskStatusPayload struct {
	TaskID    string `json:"taskId"`
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

type AddCommentPayload struct {
	TaskID    string `json:"taskId"`
	ProjectID string `json:"projectId"`
	Text      string `json:"text"`
}

// TaskPresencePayload is the body of the four START/STOP viewing/editing
// requests.
type TaskPresencePayload struct {
	TaskID    string `json:"taskId"`
	ProjectID string `json:"projectId"`
}
