package router_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vedant-vijay/TaskSync/pkg/directory"
	"github.com/vedant-vijay/TaskSync/pkg/protocol"
	"github.com/vedant-vijay/TaskSync/pkg/state"
)

// createTask makes a task through the router and returns its id, as read from
// the creator's own TASK_CREATED broadcast.
func (h *harness) createTask(t *testing.T, sess *state.Session, peer *testPeer, assignedTo string) string {
	t.Helper()
	h.router.Dispatch(context.Background(), sess, frame(t, protocol.TypeCreateTask, protocol.CreateTaskPayload{
		ProjectID:  projectID,
		Title:      "Wire the checkout flow",
		AssignedTo: assignedTo,
	}))
	created := peer.byType(t, protocol.TypeTaskCreated)
	require.Len(t, created, 1)
	var body protocol.TaskCreatedPayload
	require.NoError(t, json.Unmarshal(created[0].Payload, &body))
	peer.reset()
	return body.Task.ID
}

func TestJoinProjectSendsSnapshotAndNotifiesRoom(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.authenticate(t, aliceID)

	h.router.Dispatch(context.Background(), aliceSess, frame(t, protocol.TypeJoinProject, protocol.JoinProjectPayload{ProjectID: projectID}))

	joined := alicePeer.byType(t, protocol.TypeProjectJoined)
	require.Len(t, joined, 1)
	var snap protocol.ProjectJoinedPayload
	require.NoError(t, json.Unmarshal(joined[0].Payload, &snap))
	require.Equal(t, projectID, snap.ProjectID)
	require.Equal(t, "Checkout Revamp", snap.Project.Name)
	require.Len(t, snap.Members, 2)
	require.Equal(t, []string{aliceID}, snap.OnlineUsers)
	// Joining alone does not notify yourself.
	require.Empty(t, alicePeer.byType(t, protocol.TypeUserConnected))
	alicePeer.reset()

	bobSess, bobPeer := h.authenticate(t, bobID)
	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeJoinProject, protocol.JoinProjectPayload{ProjectID: projectID}))

	// Alice sees bob arrive; bob does not see his own arrival.
	connected := alicePeer.byType(t, protocol.TypeUserConnected)
	require.Len(t, connected, 1)
	var notice protocol.UserConnectedPayload
	require.NoError(t, json.Unmarshal(connected[0].Payload, &notice))
	require.Equal(t, bobID, notice.User.ID)
	require.Equal(t, bobID, notice.User.LegacyID)
	require.Equal(t, "Bob", notice.User.Name)
	require.Empty(t, bobPeer.byType(t, protocol.TypeUserConnected))

	// Bob's snapshot lists both online users.
	bobJoined := bobPeer.byType(t, protocol.TypeProjectJoined)
	require.Len(t, bobJoined, 1)
	var bobSnap protocol.ProjectJoinedPayload
	require.NoError(t, json.Unmarshal(bobJoined[0].Payload, &bobSnap))
	require.ElementsMatch(t, []string{aliceID, bobID}, bobSnap.OnlineUsers)
}

func TestJoinProjectRejectsNonMember(t *testing.T) {
	h := newHarness(t)
	sess, peer := h.authenticate(t, outsiderID)

	h.router.Dispatch(context.Background(), sess, frame(t, protocol.TypeJoinProject, protocol.JoinProjectPayload{ProjectID: projectID}))

	errs := peer.byType(t, protocol.TypeError)
	require.Len(t, errs, 1)
	var body protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(errs[0].Payload, &body))
	require.Equal(t, "You are not a member of this project", body.Message)
	require.Empty(t, peer.byType(t, protocol.TypeProjectJoined))
	require.Empty(t, h.registry.RoomMembers(projectID))
}

func TestLeaveProjectNotifiesRemainingMembers(t *testing.T) {
	h := newHarness(t)
	_, alicePeer := h.join(t, aliceID)
	bobSess, bobPeer := h.join(t, bobID)
	alicePeer.reset()

	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeLeaveProject, protocol.LeaveProjectPayload{ProjectID: projectID}))

	require.Len(t, bobPeer.byType(t, protocol.TypeProjectLeft), 1)
	gone := alicePeer.byType(t, protocol.TypeUserDisconnected)
	require.Len(t, gone, 1)
	var body protocol.UserDisconnectedPayload
	require.NoError(t, json.Unmarshal(gone[0].Payload, &body))
	require.Equal(t, bobID, body.UserID)
	require.Equal(t, "Bob", body.UserName)
	require.Equal(t, []string{aliceID}, h.registry.RoomMembers(projectID))
}

func TestCreateTaskBroadcastsToEveryRoomMember(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	_, bobPeer := h.join(t, bobID)
	alicePeer.reset()

	h.router.Dispatch(context.Background(), aliceSess, frame(t, protocol.TypeCreateTask, protocol.CreateTaskPayload{
		ProjectID:  projectID,
		Title:      "Wire the checkout flow",
		AssignedTo: bobID,
	}))

	for _, peer := range []*testPeer{alicePeer, bobPeer} {
		created := peer.byType(t, protocol.TypeTaskCreated)
		require.Len(t, created, 1)
		var body protocol.TaskCreatedPayload
		require.NoError(t, json.Unmarshal(created[0].Payload, &body))
		require.Equal(t, "Wire the checkout flow", body.Task.Title)
		require.Equal(t, "TODO", body.Task.Status)
		require.NotNil(t, body.Task.AssignedTo)
		require.Equal(t, "Bob", body.Task.AssignedTo.Name)
		require.Equal(t, aliceID, body.CreatedBy.UserID)
		require.Equal(t, "Alice", body.CreatedBy.UserName)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	cases := []struct {
		name    string
		payload protocol.CreateTaskPayload
		message string
	}{
		{
			"missing title",
			protocol.CreateTaskPayload{ProjectID: projectID},
			"Title and project ID are required",
		},
		{
			"invalid status",
			protocol.CreateTaskPayload{ProjectID: projectID, Title: "t", Status: "BLOCKED"},
			"Invalid status",
		},
		{
			"malformed assignee id",
			protocol.CreateTaskPayload{ProjectID: projectID, Title: "t", AssignedTo: "not-hex"},
			"Invalid user ID format for assignment",
		},
		{
			"assignee outside project",
			protocol.CreateTaskPayload{ProjectID: projectID, Title: "t", AssignedTo: outsiderID},
			"Assigned user is not a member of this project",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			aliceSess, alicePeer := h.join(t, aliceID)
			_, bobPeer := h.join(t, bobID)
			alicePeer.reset()

			h.router.Dispatch(context.Background(), aliceSess, frame(t, protocol.TypeCreateTask, tc.payload))

			errs := alicePeer.byType(t, protocol.TypeError)
			require.Len(t, errs, 1)
			var body protocol.ErrorPayload
			require.NoError(t, json.Unmarshal(errs[0].Payload, &body))
			require.Equal(t, tc.message, body.Message)
			// A rejected request never reaches the room.
			require.Empty(t, alicePeer.byType(t, protocol.TypeTaskCreated))
			require.Empty(t, bobPeer.byType(t, protocol.TypeTaskCreated))
		})
	}
}

func TestAssignTaskBroadcastsUserRef(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	_, bobPeer := h.join(t, bobID)
	taskID := h.createTask(t, aliceSess, alicePeer, "")
	bobPeer.reset()

	h.router.Dispatch(context.Background(), aliceSess, frame(t, protocol.TypeAssignTask, protocol.AssignTaskPayload{
		TaskID:     taskID,
		ProjectID:  projectID,
		AssignedTo: bobID,
	}))

	for _, peer := range []*testPeer{alicePeer, bobPeer} {
		assigned := peer.byType(t, protocol.TypeTaskAssigned)
		require.Len(t, assigned, 1)
		var body protocol.TaskAssignedPayload
		require.NoError(t, json.Unmarshal(assigned[0].Payload, &body))
		require.Equal(t, taskID, body.TaskID)
		require.NotNil(t, body.AssignedTo)
		require.Equal(t, bobID, body.AssignedTo.ID)
		require.Equal(t, "Bob", body.AssignedTo.Name)
		require.Equal(t, aliceID, body.AssignedBy.UserID)
	}
}

func TestAssignTaskUnassignSpellings(t *testing.T) {
	// Every unassignment spelling skips id-format validation and broadcasts a
	// null assignee.
	spellings := []string{`""`, `"null"`, `"undefined"`, `null`}
	for _, spelling := range spellings {
		t.Run(spelling, func(t *testing.T) {
			h := newHarness(t)
			aliceSess, alicePeer := h.join(t, aliceID)
			_, bobPeer := h.join(t, bobID)
			taskID := h.createTask(t, aliceSess, alicePeer, bobID)
			bobPeer.reset()

			raw := fmt.Sprintf(
				`{"type":"ASSIGN_TASK","payload":{"taskId":%q,"projectId":%q,"assignedTo":%s}}`,
				taskID, projectID, spelling,
			)
			h.router.Dispatch(context.Background(), aliceSess, []byte(raw))

			require.Empty(t, alicePeer.byType(t, protocol.TypeError))
			for _, peer := range []*testPeer{alicePeer, bobPeer} {
				assigned := peer.byType(t, protocol.TypeTaskAssigned)
				require.Len(t, assigned, 1)
				var body protocol.TaskAssignedPayload
				require.NoError(t, json.Unmarshal(assigned[0].Payload, &body))
				require.Nil(t, body.AssignedTo)
			}
		})
	}
}

func TestAssignTaskRejectsNonMemberAssignee(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	_, bobPeer := h.join(t, bobID)
	taskID := h.createTask(t, aliceSess, alicePeer, bobID)
	bobPeer.reset()

	h.router.Dispatch(context.Background(), aliceSess, frame(t, protocol.TypeAssignTask, protocol.AssignTaskPayload{
		TaskID:     taskID,
		ProjectID:  projectID,
		AssignedTo: outsiderID,
	}))

	errs := alicePeer.byType(t, protocol.TypeError)
	require.Len(t, errs, 1)
	var body protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(errs[0].Payload, &body))
	require.Equal(t, "Assigned user is not a member of this project", body.Message)
	require.Empty(t, bobPeer.byType(t, protocol.TypeTaskAssigned))

	// The stored assignment is untouched.
	snap, err := h.store.ProjectSnapshot(context.Background(), projectID)
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 1)
	require.Equal(t, bobID, snap.Tasks[0].AssignedTo)
}

func TestUpdateTaskStatusBroadcasts(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	bobSess, bobPeer := h.join(t, bobID)
	taskID := h.createTask(t, aliceSess, alicePeer, "")
	bobPeer.reset()

	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeUpdateTaskStatus, protocol.UpdateTaskStatusPayload{
		TaskID:    taskID,
		ProjectID: projectID,
		Status:    "IN_PROGRESS",
	}))

	for _, peer := range []*testPeer{alicePeer, bobPeer} {
		updated := peer.byType(t, protocol.TypeTaskStatusUpdated)
		require.Len(t, updated, 1)
		var body protocol.TaskStatusUpdatedPayload
		require.NoError(t, json.Unmarshal(updated[0].Payload, &body))
		require.Equal(t, taskID, body.TaskID)
		require.Equal(t, "IN_PROGRESS", body.Status)
		require.Equal(t, bobID, body.UpdatedBy.UserID)
	}
}

func TestUpdateTaskStatusRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	bobSess, bobPeer := h.join(t, bobID)
	taskID := h.createTask(t, aliceSess, alicePeer, "")
	bobPeer.reset()

	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeUpdateTaskStatus, protocol.UpdateTaskStatusPayload{
		TaskID:    taskID,
		ProjectID: projectID,
		Status:    "SHIPPED",
	}))

	// Only the sender hears about it.
	errs := bobPeer.byType(t, protocol.TypeError)
	require.Len(t, errs, 1)
	var body protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(errs[0].Payload, &body))
	require.Equal(t, "Invalid status", body.Message)
	require.Empty(t, alicePeer.byType(t, protocol.TypeTaskStatusUpdated))
	require.Empty(t, bobPeer.byType(t, protocol.TypeTaskStatusUpdated))

	snap, err := h.store.ProjectSnapshot(context.Background(), projectID)
	require.NoError(t, err)
	require.Equal(t, "TODO", string(snap.Tasks[0].Status))
}

func TestAddCommentBroadcasts(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	bobSess, bobPeer := h.join(t, bobID)
	taskID := h.createTask(t, aliceSess, alicePeer, "")
	bobPeer.reset()

	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeAddComment, protocol.AddCommentPayload{
		TaskID:    taskID,
		ProjectID: projectID,
		Text:      "Careful with the retry path here.",
	}))

	for _, peer := range []*testPeer{alicePeer, bobPeer} {
		added := peer.byType(t, protocol.TypeTaskCommentAdded)
		require.Len(t, added, 1)
		var body protocol.TaskCommentAddedPayload
		require.NoError(t, json.Unmarshal(added[0].Payload, &body))
		require.Equal(t, taskID, body.TaskID)
		require.Equal(t, "Careful with the retry path here.", body.Comment.Text)
		require.Equal(t, bobID, body.Comment.User.ID)
		require.NotEmpty(t, body.Comment.ID)
	}
}

func TestTaskPresenceBroadcasts(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	bobSess, bobPeer := h.join(t, bobID)
	taskID := h.createTask(t, aliceSess, alicePeer, "")
	bobPeer.reset()

	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeStartViewingTask, protocol.TaskPresencePayload{
		TaskID:    taskID,
		ProjectID: projectID,
	}))

	joined := alicePeer.byType(t, protocol.TypeTaskViewerJoined)
	require.Len(t, joined, 1)
	var joinBody protocol.TaskPresenceJoinedPayload
	require.NoError(t, json.Unmarshal(joined[0].Payload, &joinBody))
	require.Equal(t, taskID, joinBody.TaskID)
	require.Equal(t, bobID, joinBody.User.ID)
	require.Equal(t, "Bob", joinBody.User.Name)

	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeStopViewingTask, protocol.TaskPresencePayload{
		TaskID:    taskID,
		ProjectID: projectID,
	}))

	left := alicePeer.byType(t, protocol.TypeTaskViewerLeft)
	require.Len(t, left, 1)
	var leftBody protocol.TaskPresenceLeftPayload
	require.NoError(t, json.Unmarshal(left[0].Payload, &leftBody))
	require.Equal(t, bobID, leftBody.UserID)
}

func TestDisconnectPropagatesPresenceAndRoomNotices(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	bobSess, bobPeer := h.join(t, bobID)
	viewTask := h.createTask(t, aliceSess, alicePeer, "")
	editTask := h.createTask(t, aliceSess, alicePeer, "")
	bobPeer.reset()

	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeStartViewingTask, protocol.TaskPresencePayload{
		TaskID: viewTask, ProjectID: projectID,
	}))
	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeStartEditingTask, protocol.TaskPresencePayload{
		TaskID: editTask, ProjectID: projectID,
	}))
	alicePeer.reset()

	h.router.HandleDisconnect(bobSess)

	viewerLeft := alicePeer.byType(t, protocol.TypeTaskViewerLeft)
	require.Len(t, viewerLeft, 1)
	var viewerBody protocol.TaskPresenceLeftPayload
	require.NoError(t, json.Unmarshal(viewerLeft[0].Payload, &viewerBody))
	require.Equal(t, viewTask, viewerBody.TaskID)
	require.Equal(t, bobID, viewerBody.UserID)

	editorLeft := alicePeer.byType(t, protocol.TypeTaskEditorLeft)
	require.Len(t, editorLeft, 1)
	var editorBody protocol.TaskPresenceLeftPayload
	require.NoError(t, json.Unmarshal(editorLeft[0].Payload, &editorBody))
	require.Equal(t, editTask, editorBody.TaskID)

	gone := alicePeer.byType(t, protocol.TypeUserDisconnected)
	require.Len(t, gone, 1)

	require.Equal(t, []string{aliceID}, h.registry.RoomMembers(projectID))
	_, found := h.registry.Lookup(bobID)
	require.False(t, found)

	// A second teardown for the same session is a no-op.
	alicePeer.reset()
	h.router.HandleDisconnect(bobSess)
	require.Empty(t, alicePeer.envelopes(t))
}

func TestDisconnectWithoutPresenceEmitsNoPresenceEvents(t *testing.T) {
	h := newHarness(t)
	_, alicePeer := h.join(t, aliceID)
	bobSess, _ := h.join(t, bobID)
	alicePeer.reset()

	h.router.HandleDisconnect(bobSess)

	require.Empty(t, alicePeer.byType(t, protocol.TypeTaskViewerLeft))
	require.Empty(t, alicePeer.byType(t, protocol.TypeTaskEditorLeft))
	require.Len(t, alicePeer.byType(t, protocol.TypeUserDisconnected), 1)
}

func TestConcurrentDisconnectNotifiesOnce(t *testing.T) {
	h := newHarness(t)
	aliceSess, alicePeer := h.join(t, aliceID)
	bobSess, _ := h.join(t, bobID)
	taskID := h.createTask(t, aliceSess, alicePeer, "")
	h.router.Dispatch(context.Background(), bobSess, frame(t, protocol.TypeStartViewingTask, protocol.TaskPresencePayload{
		TaskID: taskID, ProjectID: projectID,
	}))
	alicePeer.reset()

	// Displacement and the transport close handler can both reach teardown
	// for the same session, on different goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.router.HandleDisconnect(bobSess)
		}()
	}
	wg.Wait()

	require.Len(t, alicePeer.byType(t, protocol.TypeUserDisconnected), 1)
	require.Len(t, alicePeer.byType(t, protocol.TypeTaskViewerLeft), 1)
	_, found := h.registry.Lookup(bobID)
	require.False(t, found)
}

func TestDisconnectInMultipleRoomsNotifiesSharedRoomOnce(t *testing.T) {
	h := newHarness(t)
	h.store.SeedProject(directory.Project{ID: "P2", Name: "Side Project", LeaderID: aliceID})

	aliceSess, _ := h.join(t, aliceID)
	h.router.Dispatch(context.Background(), aliceSess, frame(t, protocol.TypeJoinProject, protocol.JoinProjectPayload{ProjectID: "P2"}))
	_, bobPeer := h.join(t, bobID)
	bobPeer.reset()

	h.router.HandleDisconnect(aliceSess)

	// Bob shares only one room with alice and hears about the disconnect
	// exactly once.
	gone := bobPeer.byType(t, protocol.TypeUserDisconnected)
	require.Len(t, gone, 1)
	var body protocol.UserDisconnectedPayload
	require.NoError(t, json.Unmarshal(gone[0].Payload, &body))
	require.Equal(t, aliceID, body.UserID)
	require.Equal(t, projectID, body.ProjectID)
	require.Empty(t, h.registry.RoomsOf(aliceID))
}

func TestDisconnectUnauthenticatedSessionIsNoop(t *testing.T) {
	h := newHarness(t)
	_, alicePeer := h.join(t, aliceID)
	alicePeer.reset()

	peer := &testPeer{}
	h.router.HandleDisconnect(state.NewSession(uuid.New(), peer))

	require.Empty(t, alicePeer.envelopes(t))
}
