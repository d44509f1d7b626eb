package protocol

// UserRef identifies a user inside a broadcast payload. The id is carried
// under both "_id" and "id"; older clients read the legacy "id" field and the
// current one reads "_id". Construct via NewUserRef so the two never diverge.
type UserRef struct {
	ID       string `json:"_id"`
	LegacyID string `json:"id"`
	Name     string `json:"name"`
}

func NewUserRef(id, name string) UserRef {
	return UserRef{ID: id, LegacyID: id, Name: name}
}

// ActorRef names the user who performed an action, in the original wire shape.
type ActorRef struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type ConnectionEstablishedPayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type AuthenticatedPayload struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}

type AuthErrorPayload struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message      string `json:"message"`
	RequiresAuth bool   `json:"requiresAuth,omitempty"`
}

type ProjectPayload struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	LeaderID    string `json:"leaderId"`
}

type TaskPayload struct {
	ID            string   `json:"_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	ProjectID     string   `json:"projectId"`
	CreatedBy     string   `json:"createdBy"`
	AssignedTo    *UserRef `json:"assignedTo"`
	Status        string   `json:"status"`
	CommentCount  int      `json:"commentCount"`
	ActiveViewers []string `json:"activeViewers"`
	ActiveEditors []string `json:"activeEditors"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt"`
}

type CommentPayload struct {
	ID        string  `json:"_id"`
	User      UserRef `json:"user"`
	Text      string  `json:"text"`
	CreatedAt string  `json:"createdAt"`
}

type ProjectJoinedPayload struct {
	ProjectID   string         `json:"projectId"`
	Project     ProjectPayload `json:"project"`
	Members     []UserRef      `json:"members"`
	Tasks       []TaskPayload  `json:"tasks"`
	OnlineUsers []string       `json:"onlineUsers"`
	Timestamp   string         `json:"timestamp"`
}

type ProjectLeftPayload struct {
	ProjectID string `json:"projectId"`
}

type UserConnectedPayload struct {
	User      UserRef `json:"user"`
	ProjectID string  `json:"projectId"`
	Timestamp string  `json:"timestamp"`
}

type UserDisconnectedPayload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	ProjectID string `json:"projectId"`
	Timestamp string `json:"timestamp"`
}

type TaskCreatedPayload struct {
	Task      TaskPayload `json:"task"`
	CreatedBy ActorRef    `json:"createdBy"`
	Timestamp string      `json:"timestamp"`
}

type TaskAssignedPayload struct {
	TaskID     string   `json:"taskId"`
	AssignedTo *UserRef `json:"assignedTo"`
	AssignedBy ActorRef `json:"assignedBy"`
	Timestamp  string   `json:"timestamp"`
}

type TaskStatusUpdatedPayload struct {
	TaskID    string   `json:"taskId"`
	Status    string   `json:"status"`
	UpdatedBy ActorRef `json:"updatedBy"`
	Timestamp string   `json:"timestamp"`
}

type TaskCommentAddedPayload struct {
	TaskID    string         `json:"taskId"`
	Comment   CommentPayload `json:"comment"`
	Timestamp string         `json:"timestamp"`
}

// TaskPresenceJoinedPayload is the body of TASK_VIEWER_JOINED and
// TASK_EDITOR_JOINED.
type TaskPresenceJoinedPayload struct {
	TaskID    string  `json:"taskId"`
	User      UserRef `json:"user"`
	Timestamp string  `json:"timestamp"`
}

// TaskPresenceLeftPayload is the body of TASK_VIEWER_LEFT and TASK_EDITOR_LEFT.
type TaskPresenceLeftPayload struct {
	TaskID    string `json:"taskId"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}
