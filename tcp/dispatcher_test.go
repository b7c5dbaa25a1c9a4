package tcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, repositories.IRoomRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := testLogger()
	roomRepository := repositories.NewRoomRepository(db, log)
	authService := services.NewAuthService(repositories.NewUserRepository(db), time.Hour)
	moderator, err := moderation.NewModerator([]string{"slur"}, '*', log)
	require.NoError(t, err)
	dispatcher := NewDispatcher(log, authService, roomRepository, runtime.NewRegistry(), moderator)
	return dispatcher, roomRepository
}

func newTestSession(t *testing.T, dispatcher *Dispatcher) *Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return NewSession(server, dispatcher, testLogger(), 0, 1<<20, 64)
}

func dispatch(t *testing.T, dispatcher *Dispatcher, sess *Session, raw string) Response {
	t.Helper()
	resp, err := dispatcher.Dispatch(context.Background(), []byte(raw), sess)
	require.NoError(t, err)
	return resp
}

// drainBroadcasts returns the broadcast frames queued on the session's
// outbound path so far.
func drainBroadcasts(t *testing.T, sess *Session) []BroadcastFrame {
	t.Helper()
	var frames []BroadcastFrame
	for {
		select {
		case raw := <-sess.sink.out:
			var frame BroadcastFrame
			require.NoError(t, json.Unmarshal(raw, &frame))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func signup(t *testing.T, dispatcher *Dispatcher, sess *Session, username, password string) string {
	t.Helper()
	resp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"signup","username":%q,"password":%q}`, username, password))
	require.Equal(t, 200, resp.Code)
	require.NotEmpty(t, resp.UUID)
	return resp.UUID
}

func TestDispatcher_AuthRoundtrip(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")

	resp := dispatch(t, dispatcher, sess, `{"route":"auth","username":"alice","password":"p1"}`)
	req.Equal(200, resp.Code)
	req.NotNil(resp.Status)
	req.True(*resp.Status)
	req.NotEmpty(resp.Token)

	resp = dispatch(t, dispatcher, sess, `{"route":"auth","username":"alice","password":"nope"}`)
	req.Equal(200, resp.Code)
	req.NotNil(resp.Status)
	req.False(*resp.Status)
	req.Empty(resp.Token)
}

func TestDispatcher_SignupDuplicateUsername(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")

	resp := dispatch(t, dispatcher, sess, `{"route":"signup","username":"alice","password":"p2"}`)
	req.Equal(500, resp.Code)
	req.NotEmpty(resp.Reason)
}

func TestDispatcher_NotFoundFallthrough(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	cases := []string{
		`{"route":"teleport"}`,
		`{"no_route_at_all":true}`,
		`{"route":"auth","username":"alice"}`,
		`{"route":"create","username":"alice","password":"p1"}`,
		`{"route":"chat","username":"alice","password":"p1","chatroom_id":"r1"}`,
	}
	for _, raw := range cases {
		resp := dispatch(t, dispatcher, sess, raw)
		req.Equal(404, resp.Code, "payload: %s", raw)
		req.Equal("Not Found", resp.Reason)
	}
}

func TestDispatcher_MalformedPayloadClosesSession(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	resp, err := dispatcher.Dispatch(context.Background(), []byte("not json at all"), sess)
	req.Error(err)
	req.Equal(500, resp.Code)
	req.NotEmpty(resp.Reason)
}

func TestDispatcher_InvalidCredentialsMutateNothing(t *testing.T) {
	req := require.New(t)
	dispatcher, roomRepository := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")
	createResp := dispatch(t, dispatcher, sess,
		`{"route":"create","username":"alice","password":"p1","name":"room1"}`)
	req.Equal(200, createResp.Code)
	roomID := createResp.ChatroomID

	for _, raw := range []string{
		`{"route":"create","username":"alice","password":"bad","name":"room2"}`,
		fmt.Sprintf(`{"route":"join","username":"alice","password":"bad","chatroom_id":%q}`, roomID),
		fmt.Sprintf(`{"route":"chat","username":"alice","password":"bad","chatroom_id":%q,"msg":"hi"}`, roomID),
	} {
		resp := dispatch(t, dispatcher, sess, raw)
		req.Equal(500, resp.Code, "payload: %s", raw)
		req.Equal("Invalid authentication", resp.Reason)
	}

	// The room is untouched and no message was appended or persisted.
	joinResp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"join","username":"alice","password":"p1","chatroom_id":%q}`, roomID))
	req.Equal(200, joinResp.Code)
	req.NotNil(joinResp.Msgs)
	req.Empty(*joinResp.Msgs)

	stored, err := roomRepository.Messages(roomID)
	req.NoError(err)
	req.Empty(stored)
}

func TestDispatcher_CreateJoinChatFlow(t *testing.T) {
	req := require.New(t)
	dispatcher, roomRepository := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")

	createResp := dispatch(t, dispatcher, sess,
		`{"route":"create","username":"alice","password":"p1","name":"room1"}`)
	req.Equal(200, createResp.Code)
	roomID := createResp.ChatroomID
	req.NotEmpty(roomID)

	joinResp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"join","username":"alice","password":"p1","chatroom_id":%q}`, roomID))
	req.Equal(200, joinResp.Code)
	req.NotNil(joinResp.Msgs)
	req.Empty(*joinResp.Msgs)

	chatResp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"chat","username":"alice","password":"p1","chatroom_id":%q,"msg":"hi"}`, roomID))
	req.Equal(200, chatResp.Code)

	// The creating connection is a member, so its own sink received
	// the broadcast in addition to the 200 ack.
	broadcasts := drainBroadcasts(t, sess)
	req.Len(broadcasts, 1)
	req.Equal("alice", broadcasts[0].New.Author)
	req.Equal("hi", broadcasts[0].New.Text)
	req.Equal(roomID, broadcasts[0].New.ChatroomID)

	joinResp = dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"join","username":"alice","password":"p1","chatroom_id":%q}`, roomID))
	req.Equal(200, joinResp.Code)
	req.Len(*joinResp.Msgs, 1)
	req.Equal("alice", (*joinResp.Msgs)[0].Author)
	req.Equal("hi", (*joinResp.Msgs)[0].Text)

	// The full sequence was persisted after the post.
	stored, err := roomRepository.Messages(roomID)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("hi", stored[0].Text)
}

func TestDispatcher_ChatKeepsPostOrder(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")
	createResp := dispatch(t, dispatcher, sess,
		`{"route":"create","username":"alice","password":"p1","name":"room1"}`)
	roomID := createResp.ChatroomID

	const posts = 10
	for i := 0; i < posts; i++ {
		resp := dispatch(t, dispatcher, sess,
			fmt.Sprintf(`{"route":"chat","username":"alice","password":"p1","chatroom_id":%q,"msg":"m%d"}`, roomID, i))
		req.Equal(200, resp.Code)
	}

	joinResp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"join","username":"alice","password":"p1","chatroom_id":%q}`, roomID))
	req.Equal(200, joinResp.Code)
	req.Len(*joinResp.Msgs, posts)
	for i, message := range *joinResp.Msgs {
		req.Equal(fmt.Sprintf("m%d", i), message.Text)
	}
}

func TestDispatcher_JoinUnknownRoom(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")

	resp := dispatch(t, dispatcher, sess,
		`{"route":"join","username":"alice","password":"p1","chatroom_id":"missing"}`)
	req.Equal(500, resp.Code)
	req.Equal("Chatroom doesn't exist", resp.Reason)
}

func TestDispatcher_ChatAgainstUnknownRoom(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")

	resp := dispatch(t, dispatcher, sess,
		`{"route":"chat","username":"alice","password":"p1","chatroom_id":"missing","msg":"hi"}`)
	req.Equal(500, resp.Code)
	req.Equal("Chatroom doesn't exist", resp.Reason)
}

func TestDispatcher_JoinRehydratesRoomWithEmptyHistory(t *testing.T) {
	req := require.New(t)
	dispatcher, roomRepository := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")

	// The room exists in persistence but was never activated in this
	// process's registry.
	roomID, err := roomRepository.CreateRoom("archived")
	req.NoError(err)

	resp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"join","username":"alice","password":"p1","chatroom_id":%q}`, roomID))
	req.Equal(200, resp.Code)
	req.NotNil(resp.Msgs)
	req.Empty(*resp.Msgs)

	// Once rehydrated the room is live, so chat works.
	chatResp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"chat","username":"alice","password":"p1","chatroom_id":%q,"msg":"back"}`, roomID))
	req.Equal(200, chatResp.Code)
}

func TestDispatcher_ChatCensorsBlacklistedWords(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sess := newTestSession(t, dispatcher)

	signup(t, dispatcher, sess, "alice", "p1")
	createResp := dispatch(t, dispatcher, sess,
		`{"route":"create","username":"alice","password":"p1","name":"room1"}`)
	roomID := createResp.ChatroomID

	chatResp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"chat","username":"alice","password":"p1","chatroom_id":%q,"msg":"what a slur, really"}`, roomID))
	req.Equal(200, chatResp.Code)

	// Both the broadcast and the stored history carry the censored text.
	broadcasts := drainBroadcasts(t, sess)
	req.Len(broadcasts, 1)
	req.Equal("what a ****, really", broadcasts[0].New.Text)

	joinResp := dispatch(t, dispatcher, sess,
		fmt.Sprintf(`{"route":"join","username":"alice","password":"p1","chatroom_id":%q}`, roomID))
	req.Equal(200, joinResp.Code)
	req.Len(*joinResp.Msgs, 1)
	req.Equal("what a ****, really", (*joinResp.Msgs)[0].Text)
}

func TestDispatcher_BroadcastFailureDoesNotFailSender(t *testing.T) {
	req := require.New(t)
	dispatcher, _ := newTestDispatcher(t)
	sender := newTestSession(t, dispatcher)

	signup(t, dispatcher, sender, "alice", "p1")
	createResp := dispatch(t, dispatcher, sender,
		`{"route":"create","username":"alice","password":"p1","name":"room1"}`)
	roomID := createResp.ChatroomID

	// A member whose outbound path is already closed.
	dead := newTestSession(t, dispatcher)
	joinResp := dispatch(t, dispatcher, dead,
		fmt.Sprintf(`{"route":"join","username":"alice","password":"p1","chatroom_id":%q}`, roomID))
	req.Equal(200, joinResp.Code)
	dead.sink.Close()

	chatResp := dispatch(t, dispatcher, sender,
		fmt.Sprintf(`{"route":"chat","username":"alice","password":"p1","chatroom_id":%q,"msg":"hi"}`, roomID))
	req.Equal(200, chatResp.Code)

	// The live member still got the broadcast.
	broadcasts := drainBroadcasts(t, sender)
	req.Len(broadcasts, 1)
}
