// Package protocol defines the wire format exchanged over the persistent
// connection: a symmetric {type, payload} envelope with a closed set of tags
// per direction, and the typed payload structs for every server-emitted tag.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the unit exchanged in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client-emitted tags.
const (
	TypeAuthenticate     = "AUTHENTICATE"
	TypeJoinProject      = "JOIN_PROJECT"
	TypeLeaveProject     = "LEAVE_PROJECT"
	TypeCreateTask       = "CREATE_TASK"
	TypeAssignTask       = "ASSIGN_TASK"
	TypeUpdateTaskStatus = "UPDATE_TASK_STATUS"
	TypeAddComment       = "ADD_COMMENT"
	TypeStartViewingTask = "START_VIEWING_TASK"
	TypeStopViewingTask  = "STOP_VIEWING_TASK"
	TypeStartEditingTask = "START_EDITING_TASK"
	TypeStopEditingTask  = "STOP_EDITING_TASK"
)

// Server-emitted tags.
const (
	TypeConnectionEstablished = "CONNECTION_ESTABLISHED"
	TypeAuthenticated         = "AUTHENTICATED"
	TypeAuthError             = "AUTH_ERROR"
	TypeError                 = "ERROR"
	TypeProjectJoined         = "PROJECT_JOINED"
	TypeProjectLeft           = "PROJECT_LEFT"
	TypeUserConnected         = "USER_CONNECTED"
	TypeUserDisconnected      = "USER_DISCONNECTED"
	TypeTaskCreated           = "TASK_CREATED"
	TypeTaskAssigned          = "TASK_ASSIGNED"
	TypeTaskStatusUpdated     = "TASK_STATUS_UPDATED"
	TypeTaskCommentAdded      = "TASK_COMMENT_ADDED"
	TypeTaskViewerJoined      = "TASK_VIEWER_JOINED"
	TypeTaskViewerLeft        = "TASK_VIEWER_LEFT"
	TypeTaskEditorJoined      = "TASK_EDITOR_JOINED"
	TypeTaskEditorLeft        = "TASK_EDITOR_LEFT"
)

// Encode marshals a typed payload into a ready-to-send envelope frame.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	frame, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}
	return frame, nil
}

// MustEncode is Encode for payload structs that cannot fail to marshal.
// It panics on error, which would indicate a programming bug in a payload type.
func MustEncode(msgType string, payload any) []byte {
	frame, err := Encode(msgType, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// Timestamp returns the RFC3339 wall-clock string stamped on outbound payloads.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
