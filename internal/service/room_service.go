package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dittotube/watchparty/internal/broker"
	"github.com/dittotube/watchparty/internal/document"
	"github.com/dittotube/watchparty/internal/dto"
	"github.com/dittotube/watchparty/internal/models"
	"github.com/dittotube/watchparty/internal/observability"
)

const (
	snapshotBufferSize = 8
	keepaliveInterval  = 30 * time.Second
)

var (
	// ErrNoActiveRoom indicates a mutation or destruction was attempted
	// with no room joined. Rejected synchronously, before any network call.
	ErrNoActiveRoom = errors.New("no active room")

	// ErrBadPasscode indicates the destruction passcode did not match.
	ErrBadPasscode = errors.New("destruction passcode mismatch")

	// ErrEmptyMessage indicates the message text was empty after sanitization.
	ErrEmptyMessage = errors.New("message text empty after sanitization")

	// ErrInvalidRoomName indicates the room name normalizes to an empty slug.
	ErrInvalidRoomName = errors.New("room name produces an empty slug")

	// ErrServiceStopped indicates the reconciliation loop is not running.
	ErrServiceStopped = errors.New("room service is not running")
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Slugify maps a free-text room name to its deterministic topic slug:
// lowercase, whitespace runs collapsed to hyphens. Two clients typing
// the same human name must converge on the same topic.
func Slugify(name string) string {
	return whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// SyncChannel is the broker connection owned by the reconciliation
// loop. No other component publishes or subscribes directly.
type SyncChannel interface {
	Join(topic string) error
	Publish(topic string, payload []byte) error
	PublishEmpty(topic string) error
	Leave()
	Events() <-chan broker.Event
}

// RoomSnapshot is the point-in-time view observers receive.
type RoomSnapshot struct {
	Slug      string
	Status    string
	Destroyed bool
	Messages  models.ChatDocument
}

// RoomService owns the replicated chat document for the active room
// and reconciles it against the broker's retained payload.
type RoomService interface {
	Start(ctx context.Context)
	EnterRoom(ctx context.Context, name string) (string, error)
	LeaveRoom(ctx context.Context) error
	DestroyRoom(ctx context.Context, passcode string) error
	SendMessage(ctx context.Context, author models.User, text, replyToID string) error
	ToggleReaction(ctx context.Context, author models.User, messageID, emoji string) error
	DeleteMessage(ctx context.Context, messageID string) error
	Snapshot(ctx context.Context) (RoomSnapshot, error)
	Subscribe() (<-chan dto.ChatSocketEvent, func())
	ServeConnection(conn *websocket.Conn, user models.User)
}

type commandKind int

const (
	cmdEnter commandKind = iota
	cmdLeave
	cmdDestroy
	cmdSend
	cmdReact
	cmdDelete
	cmdSnapshot
)

type command struct {
	kind      commandKind
	name      string
	author    models.User
	text      string
	replyToID string
	messageID string
	emoji     string
	reply     chan commandReply
}

type commandReply struct {
	slug     string
	snapshot RoomSnapshot
	err      error
}

// roomState is owned exclusively by the run loop. lastPayload is the
// raw bytes of the last applied payload, used to recognise at-least-
// once redeliveries.
type roomState struct {
	slug        string
	topic       string
	doc         models.ChatDocument
	lastPayload []byte
	status      string
	destroyed   bool
}

type roomService struct {
	channel     SyncChannel
	topicPrefix string
	passcode    string
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	commands    chan command

	subsMu      sync.RWMutex
	subscribers map[chan dto.ChatSocketEvent]struct{}

	runMu   sync.RWMutex
	running bool
}

// NewRoomService creates the reconciliation loop service for one
// gateway process.
func NewRoomService(channel SyncChannel, topicPrefix, passcode string, validate *validator.Validate, logger zerolog.Logger) RoomService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &roomService{
		channel:     channel,
		topicPrefix: topicPrefix,
		passcode:    passcode,
		validator:   validate,
		sanitizer:   sanitizer,
		logger:      logger.With().Str("component", "room_service").Logger(),
		tracer:      otel.Tracer("github.com/dittotube/watchparty/internal/service/room"),
		commands:    make(chan command),
		subscribers: make(map[chan dto.ChatSocketEvent]struct{}),
	}
}

// Start launches the single-threaded dispatcher. Broker events and
// local commands are consumed from one place, so the loop is the only
// writer of room state.
func (s *roomService) Start(ctx context.Context) {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return
	}
	s.running = true
	s.runMu.Unlock()

	go s.run(ctx)
}

func (s *roomService) run(ctx context.Context) {
	defer func() {
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
	}()

	state := &roomState{status: broker.StateDisconnected.String()}

	for {
		select {
		case <-ctx.Done():
			s.channel.Leave()
			return
		case cmd := <-s.commands:
			s.handleCommand(ctx, state, cmd)
		case ev := <-s.channel.Events():
			s.handleEvent(state, ev)
		}
	}
}

func (s *roomService) EnterRoom(ctx context.Context, name string) (string, error) {
	reply, err := s.dispatch(ctx, command{kind: cmdEnter, name: name})
	return reply.slug, err
}

func (s *roomService) LeaveRoom(ctx context.Context) error {
	_, err := s.dispatch(ctx, command{kind: cmdLeave})
	return err
}

// DestroyRoom verifies the shared passcode before anything touches the
// network. The check is client-enforced access control, nothing more.
func (s *roomService) DestroyRoom(ctx context.Context, passcode string) error {
	if passcode != s.passcode {
		return ErrBadPasscode
	}

	_, err := s.dispatch(ctx, command{kind: cmdDestroy})
	return err
}

func (s *roomService) SendMessage(ctx context.Context, author models.User, text, replyToID string) error {
	_, err := s.dispatch(ctx, command{kind: cmdSend, author: author, text: text, replyToID: replyToID})
	return err
}

func (s *roomService) ToggleReaction(ctx context.Context, author models.User, messageID, emoji string) error {
	_, err := s.dispatch(ctx, command{kind: cmdReact, author: author, messageID: messageID, emoji: emoji})
	return err
}

func (s *roomService) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.dispatch(ctx, command{kind: cmdDelete, messageID: messageID})
	return err
}

func (s *roomService) Snapshot(ctx context.Context) (RoomSnapshot, error) {
	reply, err := s.dispatch(ctx, command{kind: cmdSnapshot})
	return reply.snapshot, err
}

func (s *roomService) dispatch(ctx context.Context, cmd command) (commandReply, error) {
	s.runMu.RLock()
	running := s.running
	s.runMu.RUnlock()
	if !running {
		return commandReply{}, ErrServiceStopped
	}

	cmd.reply = make(chan commandReply, 1)

	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	}

	select {
	case reply := <-cmd.reply:
		return reply, reply.err
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	}
}

func (s *roomService) handleCommand(ctx context.Context, state *roomState, cmd command) {
	switch cmd.kind {
	case cmdEnter:
		cmd.reply <- s.enterRoom(state, cmd.name)
	case cmdLeave:
		s.leaveRoom(state)
		cmd.reply <- commandReply{}
	case cmdDestroy:
		cmd.reply <- s.destroyRoom(state)
	case cmdSend:
		cmd.reply <- s.sendMessage(ctx, state, cmd)
	case cmdReact:
		cmd.reply <- s.toggleReaction(ctx, state, cmd)
	case cmdDelete:
		cmd.reply <- s.deleteMessage(ctx, state, cmd)
	case cmdSnapshot:
		cmd.reply <- commandReply{snapshot: snapshotOf(state)}
	}
}

func (s *roomService) enterRoom(state *roomState, name string) commandReply {
	slug := Slugify(name)
	if slug == "" {
		return commandReply{err: ErrInvalidRoomName}
	}

	topic := s.topicPrefix + "/" + slug
	// Re-entering after a connection error always rejoins; the channel
	// tore the errored connection down, so there is nothing to reuse.
	if topic == state.topic && !state.destroyed && state.status != broker.StateError.String() {
		return commandReply{slug: slug}
	}

	if err := s.channel.Join(topic); err != nil {
		return commandReply{err: fmt.Errorf("failed to enter room %s: %w", slug, err)}
	}

	*state = roomState{slug: slug, topic: topic, status: broker.StateConnecting.String()}
	s.notify(state)
	s.logger.Info().Str("room", slug).Msg("entered room")

	return commandReply{slug: slug}
}

func (s *roomService) leaveRoom(state *roomState) {
	s.channel.Leave()
	*state = roomState{status: broker.StateDisconnected.String()}
	s.notify(state)
}

func (s *roomService) destroyRoom(state *roomState) commandReply {
	if state.topic == "" {
		return commandReply{err: ErrNoActiveRoom}
	}

	if err := s.channel.PublishEmpty(state.topic); err != nil {
		// State is unchanged; the user can retry.
		return commandReply{err: fmt.Errorf("room destruction failed: %w", err)}
	}

	slug := state.slug
	s.channel.Leave()
	*state = roomState{destroyed: true, status: broker.StateDisconnected.String()}
	s.notify(state)
	s.logger.Info().Str("room", slug).Msg("room destroyed")

	return commandReply{}
}

// sendMessage computes the next document from the last document this
// client received or produced and publishes it in full. Local state is
// deliberately not touched here: the broker echo is the only
// confirmation path, so every client converges on whatever the broker
// currently retains.
func (s *roomService) sendMessage(ctx context.Context, state *roomState, cmd command) commandReply {
	if state.topic == "" || state.destroyed {
		observability.SyncDroppedMutations().Inc()
		return commandReply{err: ErrNoActiveRoom}
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(cmd.text))
	if clean == "" {
		return commandReply{err: ErrEmptyMessage}
	}

	// A reply target deleted by another client in the meantime just
	// degrades to a plain message.
	var replyTo *models.Message
	if cmd.replyToID != "" {
		replyTo = state.doc.Find(cmd.replyToID)
	}

	msg := document.NewMessage(cmd.author, clean, replyTo)
	next := document.Append(state.doc, msg)

	return commandReply{err: s.publish(ctx, state, next, "chat.send")}
}

func (s *roomService) toggleReaction(ctx context.Context, state *roomState, cmd command) commandReply {
	if state.topic == "" || state.destroyed {
		observability.SyncDroppedMutations().Inc()
		return commandReply{err: ErrNoActiveRoom}
	}

	if state.doc.Find(cmd.messageID) == nil {
		s.logger.Debug().Str("message_id", cmd.messageID).Msg("reaction target already gone")
		return commandReply{}
	}

	next := document.ToggleReaction(state.doc, cmd.messageID, cmd.emoji, cmd.author.ID)
	return commandReply{err: s.publish(ctx, state, next, "chat.react")}
}

func (s *roomService) deleteMessage(ctx context.Context, state *roomState, cmd command) commandReply {
	if state.topic == "" || state.destroyed {
		observability.SyncDroppedMutations().Inc()
		return commandReply{err: ErrNoActiveRoom}
	}

	if state.doc.Find(cmd.messageID) == nil {
		s.logger.Debug().Str("message_id", cmd.messageID).Msg("delete target already gone")
		return commandReply{}
	}

	next := document.Remove(state.doc, cmd.messageID)
	return commandReply{err: s.publish(ctx, state, next, "chat.delete")}
}

func (s *roomService) publish(ctx context.Context, state *roomState, next models.ChatDocument, op string) error {
	_, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("room.slug", state.slug),
		attribute.Int("document.messages", len(next)),
	))
	defer span.End()

	payload, err := document.Encode(next)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.channel.Publish(state.topic, payload); err != nil {
		span.RecordError(err)
		observability.SyncDroppedMutations().Inc()
		s.logger.Warn().Err(err).Str("room", state.slug).Msg("dropping mutation, publish failed")
		return err
	}

	return nil
}

func (s *roomService) handleEvent(state *roomState, ev broker.Event) {
	switch ev.Kind {
	case broker.EventMessage:
		s.applyPayload(state, ev)
	case broker.EventConnected:
		if ev.Topic != state.topic {
			return
		}
		state.status = broker.StateConnected.String()
		observability.SyncConnectionState().Set(float64(broker.StateConnected))
		s.notify(state)
	case broker.EventReconnecting:
		if ev.Topic != state.topic {
			return
		}
		state.status = broker.StateReconnecting.String()
		observability.SyncConnectionState().Set(float64(broker.StateReconnecting))
		s.notify(state)
	case broker.EventError:
		if ev.Topic != state.topic {
			return
		}
		state.status = broker.StateError.String()
		observability.SyncConnectionState().Set(float64(broker.StateError))
		s.logger.Error().Err(ev.Err).Str("room", state.slug).Msg("broker connection error")
		s.notify(state)
	case broker.EventDisconnected:
		if ev.Topic != state.topic {
			return
		}
		state.status = broker.StateDisconnected.String()
		observability.SyncConnectionState().Set(float64(broker.StateDisconnected))
		s.notify(state)
	}
}

// applyPayload is the sole path that updates the local document. Every
// payload, the client's own echo included, fully replaces local state;
// there is no merge step anywhere.
func (s *roomService) applyPayload(state *roomState, ev broker.Event) {
	if state.topic == "" || ev.Topic != state.topic {
		s.logger.Debug().Str("topic", ev.Topic).Msg("ignoring payload for inactive room topic")
		return
	}

	if document.IsTombstone(ev.Payload) {
		s.channel.Leave()
		*state = roomState{destroyed: true, status: broker.StateDisconnected.String()}
		s.notify(state)
		s.logger.Info().Str("topic", ev.Topic).Msg("room destroyed by a participant")
		return
	}

	if state.lastPayload != nil && bytes.Equal(state.lastPayload, ev.Payload) {
		// At-least-once redelivery; the document is a value, nothing changes.
		return
	}

	doc, err := document.Decode(ev.Payload)
	if err != nil {
		observability.SyncMalformedPayloads().Inc()
		s.logger.Warn().Err(err).Str("topic", ev.Topic).Msg("discarding malformed room payload")
		return
	}

	state.doc = doc
	state.lastPayload = append([]byte(nil), ev.Payload...)
	observability.SyncDocumentsApplied().Inc()
	s.notify(state)
}

func (s *roomService) notify(state *roomState) {
	event := dto.NewChatSocketEvent(state.slug, state.status, state.destroyed, state.doc)

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn().Str("room", state.slug).Msg("dropping snapshot for slow subscriber")
		}
	}
}

// Subscribe registers an observer for document and status snapshots.
// The returned cancel function must be called exactly once.
func (s *roomService) Subscribe() (<-chan dto.ChatSocketEvent, func()) {
	ch := make(chan dto.ChatSocketEvent, snapshotBufferSize)

	s.subsMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}

	return ch, cancel
}

// ServeConnection pumps document snapshots to a UI websocket and feeds
// its mutation frames into the reconciliation loop. It returns when
// the socket closes.
func (s *roomService) ServeConnection(conn *websocket.Conn, user models.User) {
	events, cancel := s.Subscribe()
	defer cancel()

	observability.ChatClientsConnected().Inc()
	defer observability.ChatClientsConnected().Dec()

	if snapshot, err := s.Snapshot(context.Background()); err == nil {
		initial := dto.NewChatSocketEvent(snapshot.Slug, snapshot.Status, snapshot.Destroyed, snapshot.Messages)
		if err := conn.WriteJSON(initial); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(event); err != nil {
					s.logger.Debug().Err(err).Msg("chat write loop terminated")
					return
				}
			case <-time.After(keepaliveInterval):
				if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
					s.logger.Debug().Err(err).Msg("chat ping failed")
					return
				}
			}
		}
	}()

	for {
		var frame dto.ChatActionRequest
		if err := conn.ReadJSON(&frame); err != nil {
			s.logger.Debug().Err(err).Msg("chat read loop ended")
			break
		}

		if err := s.validator.Struct(frame); err != nil {
			s.logger.Warn().Err(err).Msg("rejecting invalid chat frame")
			continue
		}

		if err := s.applyFrame(user, frame); err != nil {
			// Mutations with no usable room or connection are dropped,
			// not queued.
			s.logger.Warn().Err(err).Str("action", frame.Action).Msg("chat mutation dropped")
		}
	}

	cancel()
	<-done
}

func (s *roomService) applyFrame(user models.User, frame dto.ChatActionRequest) error {
	ctx := context.Background()

	switch frame.Action {
	case "send":
		return s.SendMessage(ctx, user, frame.Text, frame.ReplyToID)
	case "react":
		return s.ToggleReaction(ctx, user, frame.MessageID, frame.Emoji)
	case "delete":
		return s.DeleteMessage(ctx, frame.MessageID)
	default:
		return fmt.Errorf("unknown chat action %q", frame.Action)
	}
}

func snapshotOf(state *roomState) RoomSnapshot {
	doc := make(models.ChatDocument, len(state.doc))
	copy(doc, state.doc)

	return RoomSnapshot{
		Slug:      state.slug,
		Status:    state.status,
		Destroyed: state.destroyed,
		Messages:  doc,
	}
}
