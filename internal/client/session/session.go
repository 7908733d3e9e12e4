// Package session owns one user's live connection to a room service:
// identity, push feed, reconciled operation view and invite state. It
// is the single surface the presentation layer talks to.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goteamwork/roomsync/internal/client/backend"
	"github.com/goteamwork/roomsync/internal/client/config"
	"github.com/goteamwork/roomsync/internal/client/eventbus"
	"github.com/goteamwork/roomsync/internal/client/ingest"
	"github.com/goteamwork/roomsync/internal/client/invite"
	"github.com/goteamwork/roomsync/internal/client/reconcile"
	"github.com/goteamwork/roomsync/internal/client/stream"
	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

// ErrNotStarted guards calls made before Start completed.
var ErrNotStarted = errors.New("session not started")

// eventChannelProvider is satisfied by backends that deliver events
// in-process instead of over a push URL.
type eventChannelProvider interface {
	EventChannel(userID string) <-chan model.Envelope
}

// Session is one user's live state. All methods are safe for concurrent
// use after Start returns.
type Session struct {
	cfg      *config.Config
	backend  backend.Backend
	bus      *eventbus.Bus
	ingestor *ingest.Ingestor
	feed     *reconcile.Reconciler
	invites  *invite.Tracker
	logger   logging.Logger

	mu      sync.Mutex
	user    model.User
	roomID  string
	source  stream.Source
	subs    []eventbus.Subscription
	started bool
}

func New(cfg *config.Config, b backend.Backend, logger logging.Logger) *Session {
	bus := eventbus.New(logger)
	s := &Session{
		cfg:      cfg,
		backend:  b,
		bus:      bus,
		ingestor: ingest.New(logger),
		invites:  invite.NewTracker(cfg.InviteFallbackTTL),
		logger:   logger,
	}
	s.feed = reconcile.New(b, logger)
	return s
}

// Bus exposes the event bus so the presentation layer can subscribe to
// push events alongside the session's own handlers.
func (s *Session) Bus() *eventbus.Bus { return s.bus }

// Invites exposes the invite state for rendering.
func (s *Session) Invites() *invite.Tracker { return s.invites }

// Start connects, registers the identity and opens the push feed.
// Handlers are subscribed exactly once here; reconnects inside the feed
// never re-subscribe them.
func (s *Session) Start(ctx context.Context, name string) error {
	if err := s.backend.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	user, _, err := s.backend.CreateUser(ctx, name)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	s.mu.Lock()
	s.user = *user
	s.started = true
	s.mu.Unlock()

	s.subscribeHandlers()
	s.invites.Start()

	if provider, ok := s.backend.(eventChannelProvider); ok {
		s.setSource(stream.ConnectLocal(provider.EventChannel(user.ID), s.bus, s.logger))
	} else {
		url := s.backend.StreamURL(user.ID)
		s.setSource(stream.Connect(url, s.bus, s.cfg.ReconnectDelay, s.logger))
	}

	s.logger.Info(ctx, "session started", "userId", user.ID, "name", user.Name)
	return nil
}

func (s *Session) setSource(src stream.Source) {
	s.mu.Lock()
	prev := s.source
	s.source = src
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (s *Session) subscribeHandlers() {
	var subs []eventbus.Subscription
	sub := func(t model.EventType, h eventbus.Handler) {
		subs = append(subs, s.bus.Subscribe(t, h))
	}

	sub(model.EventConnected, func(model.Event) { s.resync() })
	sub(model.EventUserInvited, func(ev model.Event) {
		if offer, ok := ev.(model.InviteOffer); ok {
			s.invites.Offer(offer)
		}
	})
	sub(model.EventJoinRequest, func(ev model.Event) {
		if req, ok := ev.(model.JoinRequest); ok {
			s.invites.AddJoinRequest(req)
		}
	})
	sub(model.EventUserJoined, func(ev model.Event) {
		joined, ok := ev.(model.UserJoined)
		if !ok {
			return
		}
		if joined.UserID == s.UserID() {
			s.enterRoom(joined.RoomID)
		}
	})
	sub(model.EventRoomDeleted, func(ev model.Event) {
		deleted, ok := ev.(model.RoomDeleted)
		if !ok {
			return
		}
		s.mu.Lock()
		if s.roomID == deleted.RoomID {
			s.roomID = ""
		}
		s.mu.Unlock()
	})
	sub(model.EventChatMessage, func(ev model.Event) {
		posted, ok := ev.(model.ChatPosted)
		if !ok {
			return
		}
		s.feed.ApplyDelta(chatOperation(posted.ChatMessage))
	})
	sub(model.EventClipboardCopied, func(ev model.Event) {
		if copied, ok := ev.(model.ClipboardCopied); ok {
			s.feed.ApplyDelta(copied.Op)
		}
	})
	sub(model.EventClipboardUpdated, func(ev model.Event) {
		if updated, ok := ev.(model.ClipboardUpdated); ok {
			s.feed.ApplyDelta(updated.Op)
		}
	})
	sub(model.EventDisconnected, func(model.Event) {
		s.logger.Warn(context.Background(), "push feed disconnected")
	})

	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
}

// chatOperation lifts a pushed chat message into the operation shape the
// feed merges. The host records the same operation on its log, so the id
// and identity fields line up with later snapshot fetches.
func chatOperation(msg model.ChatMessage) model.Operation {
	return model.Operation{
		ID:        msg.ID,
		OpType:    model.OpAdd,
		ItemID:    msg.ID,
		Item:      &model.Item{ID: msg.ID, Type: model.ItemChat, Data: &msg},
		Timestamp: msg.Timestamp,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
	}
}

// resync reloads the feed after (re)connect so operations pushed while
// the channel was down are not lost.
func (s *Session) resync() {
	roomID := s.RoomID()
	if roomID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	if err := s.feed.LoadSnapshot(ctx, roomID); err != nil {
		s.logger.Error(ctx, "feed resync failed", "roomId", roomID, "error", err)
	}
}

func (s *Session) enterRoom(roomID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.user.RoomID = &roomID
	s.mu.Unlock()
	s.resync()
}

// UserID returns the session identity, or "" before Start.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.ID
}

// UserName returns the registered display name.
func (s *Session) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Name
}

// RoomID returns the current room, or "" when not in one.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Users fetches the current lobby roster.
func (s *Session) Users(ctx context.Context) ([]model.User, error) {
	return s.backend.FetchUsers(ctx)
}

// Rooms fetches the current room list.
func (s *Session) Rooms(ctx context.Context) ([]model.Room, error) {
	return s.backend.FetchRooms(ctx)
}

// ChatView returns the merged chat feed in arrival order.
func (s *Session) ChatView() []model.Operation {
	return s.feed.View(reconcile.Chat)
}

// ClipboardView returns the merged shared-clipboard feed.
func (s *Session) ClipboardView() []model.Operation {
	return s.feed.View(reconcile.Clipboard)
}

// SendChat submits a message and appends it provisionally so it renders
// immediately; the authoritative echo replaces it in place.
func (s *Session) SendChat(ctx context.Context, message string) error {
	s.mu.Lock()
	user, roomID, started := s.user, s.roomID, s.started
	s.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if roomID == "" {
		return errors.New("not in a room")
	}

	msg := model.ChatMessage{
		ID:        "local_" + uuid.NewString(),
		RoomID:    roomID,
		UserID:    user.ID,
		UserName:  user.Name,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
	s.feed.AppendProvisional(chatOperation(msg))

	if err := s.backend.SendChatMessage(ctx, roomID, user.ID, message); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	return nil
}

// ShareText publishes a text clipboard item to the room.
func (s *Session) ShareText(ctx context.Context, text string) error {
	s.mu.Lock()
	user := s.user
	s.mu.Unlock()

	item := model.ClipboardItem{Type: model.ClipboardText, Text: text, Ready: true}
	op, err := s.backend.ShareClipboard(ctx, user.ID, user.Name, item)
	if err != nil {
		return fmt.Errorf("share clipboard: %w", err)
	}
	s.feed.ApplyDelta(*op)
	return nil
}

// DropFiles ingests a drop payload and hands it to the host. When every
// file resolved an absolute path the hand-off is path-based and no
// contents cross the transport; otherwise, or when the host cannot read
// the paths, the files are read and uploaded. A drop with no usable
// files is a silent no-op.
func (s *Session) DropFiles(ctx context.Context, drop ingest.Drop) error {
	files, err := s.ingestor.Collect(ctx, drop)
	if err != nil {
		return fmt.Errorf("collect drop: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	s.mu.Lock()
	user := s.user
	s.mu.Unlock()

	if paths := resolvedPaths(files); paths != nil {
		op, _, err := s.backend.SavePendingFiles(ctx, user.ID, user.Name, paths)
		if err == nil {
			s.feed.ApplyDelta(*op)
			return nil
		}
		s.logger.Warn(ctx, "path hand-off refused, uploading contents", "error", err)
	}

	payloads, err := s.ingestor.Payloads(ctx, files)
	if err != nil {
		return fmt.Errorf("read dropped files: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}

	op, err := s.backend.SaveDroppedFiles(ctx, user.ID, user.Name, payloads)
	if err != nil {
		return fmt.Errorf("save dropped files: %w", err)
	}
	s.feed.ApplyDelta(*op)
	return nil
}

// resolvedPaths returns every file's absolute path, or nil when any
// file lacks one; a partial path set always goes the contents route.
func resolvedPaths(files []ingest.DroppedFile) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.Path == "" {
			return nil
		}
		paths = append(paths, f.Path)
	}
	return paths
}

// DownloadArchive fetches the packed contents of a ready file item.
func (s *Session) DownloadArchive(ctx context.Context, downloadID string) ([]byte, error) {
	return s.backend.DownloadArchive(ctx, downloadID)
}

// Invite offers room membership to another user. A second outbound
// invite while one is pending is refused locally, with no network call.
func (s *Session) Invite(ctx context.Context, inviteeID, inviteeName, message string) error {
	if err := s.invites.BeginOutbound(inviteeID, inviteeName); err != nil {
		return err
	}

	inviteID, expiresAt, err := s.backend.InviteUser(ctx, inviteeID, s.UserID(), message)
	if err != nil {
		s.invites.ClearOutbound()
		return fmt.Errorf("invite: %w", err)
	}
	s.invites.ConfirmOutbound(inviteID, expiresAt)
	return nil
}

// AcceptInvite accepts the inbound offer. The request is sent even if
// the local countdown just expired; the host has the final word.
func (s *Session) AcceptInvite(ctx context.Context) error {
	offer, err := s.invites.BeginAccept()
	if err != nil {
		return err
	}

	roomID, err := s.backend.AcceptInvite(ctx, offer.InviteID, s.UserID())
	if err != nil {
		s.invites.AcceptFailed(offer)
		return fmt.Errorf("accept invite: %w", err)
	}
	s.invites.AcceptSucceeded()
	s.enterRoom(roomID)
	return nil
}

// DeclineInvite discards the inbound offer locally. The host's own
// expiry reaps the pending invite on its side.
func (s *Session) DeclineInvite() error {
	return s.invites.Decline()
}

// JoinRoom joins a room directly. Owner-gated rooms refuse unless this
// user was invited or approved; RequestJoin is the path in that case.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	if err := s.backend.JoinRoom(ctx, s.UserID(), roomID); err != nil {
		return err
	}
	s.enterRoom(roomID)
	return nil
}

// RequestJoin asks the owner of a room to admit this user.
func (s *Session) RequestJoin(ctx context.Context, roomID string) error {
	return s.backend.RequestJoin(ctx, s.UserID(), roomID)
}

// ApproveJoin admits a requester to the room this user owns.
func (s *Session) ApproveJoin(ctx context.Context, requesterID, roomID string) error {
	if err := s.backend.ApproveJoin(ctx, s.UserID(), requesterID, roomID); err != nil {
		return err
	}
	s.invites.ResolveJoinRequest(requesterID, roomID)
	return nil
}

// RejectJoin discards a pending join request without admitting anyone.
func (s *Session) RejectJoin(requesterID, roomID string) {
	s.invites.ResolveJoinRequest(requesterID, roomID)
}

// Leave exits the current room.
func (s *Session) Leave(ctx context.Context) error {
	roomID := s.RoomID()
	if roomID == "" {
		return errors.New("not in a room")
	}
	if err := s.backend.LeaveRoom(ctx, s.UserID()); err != nil {
		return err
	}
	s.mu.Lock()
	s.roomID = ""
	s.user.RoomID = nil
	s.mu.Unlock()
	return nil
}

// Close tears the session down: feed first so no more events arrive,
// then the invite ticker. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	src := s.source
	s.source = nil
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	if src != nil {
		src.Close()
	}
	s.invites.Stop()
	for _, sub := range subs {
		s.bus.Unsubscribe(sub)
	}
}
