package tcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"

	"github.com/samber/lo"
)

// Dispatcher decodes a request and orchestrates the registry and the
// persistence services for it. It is stateless and shared by every
// session; all shared mutable state lives behind the registry's locks.
type Dispatcher struct {
	log         *slog.Logger
	authService services.IAuthService
	roomRepo    repositories.IRoomRepository
	registry    *runtime.Registry
	moderator   *moderation.Moderator
}

// NewDispatcher wires the relay's collaborators. moderator may be nil,
// which disables censoring entirely.
func NewDispatcher(log *slog.Logger, authService services.IAuthService,
	roomRepo repositories.IRoomRepository, registry *runtime.Registry,
	moderator *moderation.Moderator) *Dispatcher {
	return &Dispatcher{
		log:         log,
		authService: authService,
		roomRepo:    roomRepo,
		registry:    registry,
		moderator:   moderator,
	}
}

// Dispatch handles one decoded frame and returns the response for the
// originating connection. The second return value is non-nil when the
// payload was not a well-formed request, telling the session to close
// after delivering the error response.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, sess *Session) (Response, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		decodeErr := fmt.Errorf("malformed request: %w", err)
		return errorResponse(decodeErr), decodeErr
	}

	route, handler := d.match(req)
	start := time.Now()
	resp := handler(ctx, req, sess)
	DispatchDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	RequestsTotal.WithLabelValues(route, strconv.Itoa(resp.Code)).Inc()
	return resp, nil
}

type handlerFunc func(ctx context.Context, req Request, sess *Session) Response

// match resolves the route and verifies its required fields. A matched
// route with a missing field is treated exactly like an unknown route.
func (d *Dispatcher) match(req Request) (string, handlerFunc) {
	switch {
	case req.Route == RouteAuth && hasFields(req.Username, req.Password):
		return RouteAuth, d.handleAuth
	case req.Route == RouteSignup && hasFields(req.Username, req.Password):
		return RouteSignup, d.handleSignup
	case req.Route == RouteCreate && hasFields(req.Username, req.Password, req.Name):
		return RouteCreate, d.handleCreate
	case req.Route == RouteJoin && hasFields(req.Username, req.Password, req.ChatroomID):
		return RouteJoin, d.handleJoin
	case req.Route == RouteChat && hasFields(req.Username, req.Password, req.ChatroomID, req.Msg):
		return RouteChat, d.handleChat
	default:
		return "unknown", func(context.Context, Request, *Session) Response {
			return notFoundResponse()
		}
	}
}

func (d *Dispatcher) handleAuth(_ context.Context, req Request, _ *Session) Response {
	ok, token, err := d.authService.Login(*req.Username, *req.Password)
	if err != nil {
		return errorResponse(err)
	}
	resp := Response{Code: 200, Status: &ok}
	if ok {
		resp.Token = string(token)
	}
	return resp
}

func (d *Dispatcher) handleSignup(_ context.Context, req Request, _ *Session) Response {
	userID, token, err := d.authService.Register(*req.Username, *req.Password)
	if err != nil {
		return errorResponse(err)
	}
	d.log.Info("account created", "username", *req.Username)
	return Response{Code: 200, UUID: userID, Token: string(token)}
}

func (d *Dispatcher) handleCreate(_ context.Context, req Request, sess *Session) Response {
	if resp, ok := d.authenticated(req); !ok {
		return resp
	}

	roomID, err := d.roomRepo.CreateRoom(*req.Name)
	if err != nil {
		return errorResponse(err)
	}

	room := domain.NewRoom(domain.RoomID(roomID), *req.Name)
	d.moveSession(sess, room.ID)
	d.registry.Register(room, sess.ID(), sess.Sink())
	d.log.Info("room created", "room_id", roomID, "name", *req.Name)
	return Response{Code: 200, ChatroomID: roomID}
}

func (d *Dispatcher) handleJoin(_ context.Context, req Request, sess *Session) Response {
	if resp, ok := d.authenticated(req); !ok {
		return resp
	}

	roomID := domain.RoomID(*req.ChatroomID)

	if history, live := d.registry.Join(roomID, sess.ID(), sess.Sink()); live {
		d.moveSession(sess, roomID)
		return historyResponse(history)
	}

	exists, err := d.roomRepo.RoomExists(*req.ChatroomID)
	if err != nil {
		return errorResponse(err)
	}
	if !exists {
		return errorResponse(errors.ErrRoomNotFound)
	}

	name, err := d.roomRepo.RoomName(*req.ChatroomID)
	if err != nil {
		return errorResponse(err)
	}

	// Rehydration restores the room's identity, not its history: the
	// persistence contract only flows messages outward, so a revived
	// room starts with an empty in-memory sequence.
	d.moveSession(sess, roomID)
	history := d.registry.Register(domain.NewRoom(roomID, name), sess.ID(), sess.Sink())
	return historyResponse(history)
}

func (d *Dispatcher) handleChat(ctx context.Context, req Request, sess *Session) Response {
	if resp, ok := d.authenticated(req); !ok {
		return resp
	}

	roomID := domain.RoomID(*req.ChatroomID)

	text := *req.Msg
	if d.moderator != nil {
		censored, matched := d.moderator.Censor(text)
		if len(matched) > 0 {
			d.log.Info("message censored", "room_id", roomID, "author", *req.Username, "words", len(matched))
		}
		text = censored
	}
	message := domain.NewMessage(*req.Username, text, roomID)

	sequence, sinks, live := d.registry.Append(roomID, message)
	if !live {
		return errorResponse(errors.ErrRoomNotFound)
	}

	if err := d.roomRepo.StoreMessages(*req.ChatroomID, toDiskMessages(sequence)); err != nil {
		return errorResponse(err)
	}

	// Fire-and-forget fan-out: one dead or slow member never blocks
	// delivery to the others and never fails the sender's ack.
	for _, sink := range sinks {
		if err := sink.Consume(ctx, message); err != nil {
			d.log.Debug("broadcast not delivered", "room_id", roomID, "error", err)
		}
	}

	return Response{Code: 200}
}

// authenticated re-checks credentials for a state-mutating route. The
// relay keeps no session state: credentials travel with every request.
func (d *Dispatcher) authenticated(req Request) (Response, bool) {
	ok, err := d.authService.Authenticate(*req.Username, *req.Password)
	if err != nil {
		return errorResponse(err), false
	}
	if !ok {
		return errorResponse(errors.ErrInvalidAuthentication), false
	}
	return Response{}, true
}

// moveSession enforces single-room membership: joining a room removes
// the session from the one it was in.
func (d *Dispatcher) moveSession(sess *Session, roomID domain.RoomID) {
	if prev := sess.CurrentRoom(); prev != "" && prev != roomID {
		d.registry.Leave(prev, sess.ID())
	}
	sess.SetCurrentRoom(roomID)
}

// release detaches a closing session from its room.
func (d *Dispatcher) release(sess *Session) {
	if roomID := sess.CurrentRoom(); roomID != "" {
		d.registry.Leave(roomID, sess.ID())
	}
}

func historyResponse(history []domain.Message) Response {
	msgs := lo.Map(history, func(message domain.Message, _ int) WireMessage {
		return WireMessage{
			Author:     message.Author,
			Text:       message.Text,
			ChatroomID: string(message.RoomID),
		}
	})
	if msgs == nil {
		msgs = []WireMessage{}
	}
	return Response{Code: 200, Msgs: &msgs}
}

func toDiskMessages(sequence []domain.Message) []repositories.DiskMessage {
	return lo.Map(sequence, func(message domain.Message, _ int) repositories.DiskMessage {
		return repositories.DiskMessage{
			ID:     message.ID,
			Room:   string(message.RoomID),
			Author: message.Author,
			Text:   message.Text,
			At:     message.CreatedAt,
		}
	})
}
