// Package host implements the room service: user and room registry,
// invite lifecycle, per-room operation logs and event fan-out. It backs
// both the HTTP API and the in-process local backend.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

const (
	inviteTimeout       = 30 * time.Second
	roomCleanupInterval = 30 * time.Minute
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrRoomNotFound   = errors.New("room not found")
	ErrInviteNotFound = errors.New("invite not found")
	ErrInviteExpired  = errors.New("invite expired")
	ErrAlreadyInRoom  = errors.New("user already in a room")
	ErrNotInRoom      = errors.New("user is not in this room")
	ErrNotOwner       = errors.New("permission denied: not room owner")
	ErrJoinNotAllowed = errors.New("permission denied: join request required")
)

// pendingInvite is an offer awaiting the invitee's answer. RoomID is
// empty when accepting should create a fresh room for both parties.
type pendingInvite struct {
	ID        string
	InviterID string
	InviteeID string
	Message   string
	RoomID    string
	ExpiresAt time.Time
}

// Core holds the authoritative room-service state. All exported methods
// are safe for concurrent use.
type Core struct {
	mu             sync.RWMutex
	users          map[string]*model.User
	rooms          map[string]*model.Room
	pendingInvites map[string]*pendingInvite
	userCounter    int64
	roomCounter    int64
	inviteCounter  int64

	history  *HistoryPool
	push     *PushManager
	archives *archiveStore
	logger   logging.Logger

	jwtSecret []byte
	now       func() time.Time
}

func NewCore(logger logging.Logger) (*Core, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return &Core{
		users:          make(map[string]*model.User),
		rooms:          make(map[string]*model.Room),
		pendingInvites: make(map[string]*pendingInvite),
		history:        NewHistoryPool(),
		push:           NewPushManager(logger),
		archives:       newArchiveStore(),
		logger:         logger,
		jwtSecret:      secret,
		now:            time.Now,
	}, nil
}

// Push exposes the event fan-out, used by the HTTP layer and tests.
func (c *Core) Push() *PushManager { return c.push }

// StartMaintenance runs periodic cleanup of empty rooms and expired
// invites until the context is cancelled.
func (c *Core) StartMaintenance(ctx context.Context) {
	go func() {
		roomTicker := time.NewTicker(roomCleanupInterval)
		inviteTicker := time.NewTicker(time.Second)
		defer roomTicker.Stop()
		defer inviteTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-roomTicker.C:
				c.cleanupEmptyRooms()
			case <-inviteTicker.C:
				c.cleanupExpiredInvites()
			}
		}
	}()
}

// CreateUser registers a user and returns it with a bearer token. A
// blank or fully stripped name gets a generated one.
func (c *Core) CreateUser(name string) (*model.User, string, error) {
	c.mu.Lock()
	cleanName := sanitizeUserName(name)
	if cleanName == "" {
		cleanName = fmt.Sprintf("User %d", c.userCounter+1)
	}
	for _, u := range c.users {
		if u.Name == cleanName {
			c.mu.Unlock()
			return nil, "", fmt.Errorf("user name %q already taken", cleanName)
		}
	}

	c.userCounter++
	user := &model.User{
		ID:       fmt.Sprintf("user_%d", c.userCounter),
		Name:     cleanName,
		IsOnline: true,
	}
	c.users[user.ID] = user
	c.mu.Unlock()

	token, err := c.issueToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	c.logger.Info(context.Background(), "user created", "userId", user.ID, "name", cleanName)
	c.push.BroadcastToAll(model.UserCreated{User: *user})
	return user, token, nil
}

// Users returns all known users sorted by id.
func (c *Core) Users() []model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	users := make([]model.User, 0, len(c.users))
	for _, u := range c.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// User returns one user by id.
func (c *Core) User(userID string) (*model.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

// Rooms returns all rooms sorted by id.
func (c *Core) Rooms() []model.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]model.Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, *r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// Invite offers room membership to inviteeID. If the inviter is already
// in a room the invite targets that room; otherwise a room is created
// when the invitee accepts. Returns the invite id and absolute expiry.
func (c *Core) Invite(inviteeID, inviterID, message string) (string, int64, error) {
	c.mu.Lock()
	invitee, ok := c.users[inviteeID]
	if !ok {
		c.mu.Unlock()
		return "", 0, fmt.Errorf("invitee: %w", ErrUserNotFound)
	}
	inviter, ok := c.users[inviterID]
	if !ok {
		c.mu.Unlock()
		return "", 0, fmt.Errorf("inviter: %w", ErrUserNotFound)
	}

	var targetRoomID, targetRoomName string
	if inviter.RoomID != nil {
		room, ok := c.rooms[*inviter.RoomID]
		if !ok {
			c.mu.Unlock()
			return "", 0, fmt.Errorf("inviter's room: %w", ErrRoomNotFound)
		}
		targetRoomID = room.ID
		targetRoomName = room.Name
	}
	if invitee.RoomID != nil {
		c.mu.Unlock()
		return "", 0, fmt.Errorf("invitee: %w", ErrAlreadyInRoom)
	}

	cleanMessage := sanitizeInviteMessage(message)
	if cleanMessage == "" {
		cleanMessage = fmt.Sprintf("Hi, it's me, %s.", inviter.Name)
	}

	c.inviteCounter++
	inviteID := fmt.Sprintf("invite_%d", c.inviteCounter)
	expiresAt := c.now().Add(inviteTimeout)
	c.pendingInvites[inviteID] = &pendingInvite{
		ID:        inviteID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Message:   cleanMessage,
		RoomID:    targetRoomID,
		ExpiresAt: expiresAt,
	}
	inviterName := inviter.Name
	c.mu.Unlock()

	offer := model.InviteOffer{
		InviteID:    inviteID,
		InviterID:   inviterID,
		InviterName: inviterName,
		Message:     cleanMessage,
		ExpiresAt:   expiresAt.Unix(),
		RoomID:      targetRoomID,
		RoomName:    targetRoomName,
	}
	if err := c.push.SendToUser(inviteeID, offer); err != nil {
		c.mu.Lock()
		delete(c.pendingInvites, inviteID)
		c.mu.Unlock()
		return "", 0, fmt.Errorf("deliver invite: %w", err)
	}

	c.logger.Info(context.Background(), "invite sent",
		"inviteId", inviteID, "inviterId", inviterID, "inviteeId", inviteeID, "roomId", targetRoomID)
	return inviteID, expiresAt.Unix(), nil
}

// AcceptInvite consumes a pending invite. An invite with a target room
// joins the invitee there; otherwise a fresh room is created and both
// parties join it, with the inviter as owner.
func (c *Core) AcceptInvite(inviteID, inviteeID string) (string, error) {
	c.mu.Lock()
	pending, ok := c.pendingInvites[inviteID]
	if !ok {
		c.mu.Unlock()
		return "", ErrInviteNotFound
	}
	if pending.InviteeID != inviteeID {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: invite addressed to another user", ErrInviteNotFound)
	}
	// One shot: the invite is consumed no matter how this ends.
	delete(c.pendingInvites, inviteID)

	if c.now().After(pending.ExpiresAt) {
		c.mu.Unlock()
		return "", ErrInviteExpired
	}

	inviter, inviterOK := c.users[pending.InviterID]
	invitee, inviteeOK := c.users[pending.InviteeID]
	if !inviterOK || !inviteeOK {
		c.mu.Unlock()
		return "", ErrUserNotFound
	}

	if pending.RoomID != "" {
		if inviter.RoomID == nil || *inviter.RoomID != pending.RoomID {
			c.mu.Unlock()
			return "", fmt.Errorf("inviter no longer in the room: %w", ErrInviteNotFound)
		}
		if invitee.RoomID != nil {
			c.mu.Unlock()
			return "", fmt.Errorf("invitee: %w", ErrAlreadyInRoom)
		}
		room, ok := c.rooms[pending.RoomID]
		if !ok {
			c.mu.Unlock()
			return "", ErrRoomNotFound
		}
		if !contains(room.ApprovedUserIDs, inviteeID) {
			room.ApprovedUserIDs = append(room.ApprovedUserIDs, inviteeID)
		}
		c.mu.Unlock()

		if _, err := c.JoinRoom(inviteeID, pending.RoomID); err != nil {
			return "", err
		}
		return pending.RoomID, nil
	}

	if inviter.RoomID != nil || invitee.RoomID != nil {
		c.mu.Unlock()
		return "", ErrAlreadyInRoom
	}

	c.roomCounter++
	room := &model.Room{
		ID:              fmt.Sprintf("room_%d", c.roomCounter),
		Name:            fmt.Sprintf("Room %d", c.roomCounter),
		OwnerID:         inviter.ID,
		UserIDs:         []string{},
		ApprovedUserIDs: []string{inviter.ID, invitee.ID},
	}
	c.rooms[room.ID] = room
	c.mu.Unlock()

	if _, err := c.JoinRoom(inviter.ID, room.ID); err != nil {
		return "", err
	}
	if _, err := c.JoinRoom(invitee.ID, room.ID); err != nil {
		return "", err
	}
	return room.ID, nil
}

// JoinRoom adds a user to a room and notifies all members. Owner-gated
// rooms admit only the owner and approved users.
func (c *Core) JoinRoom(userID, roomID string) (*model.Room, error) {
	c.mu.Lock()
	user, ok := c.users[userID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrUserNotFound
	}
	room, ok := c.rooms[roomID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrRoomNotFound
	}

	if room.OwnerID != "" && room.OwnerID != userID && !contains(room.ApprovedUserIDs, userID) {
		c.mu.Unlock()
		return nil, ErrJoinNotAllowed
	}

	if contains(room.UserIDs, userID) {
		copied := *room
		c.mu.Unlock()
		return &copied, nil
	}

	room.UserIDs = append(room.UserIDs, userID)
	user.RoomID = &room.ID
	members := append([]string{}, room.UserIDs...)
	joined := model.UserJoined{
		RoomID:   room.ID,
		RoomName: room.Name,
		UserID:   userID,
		UserName: user.Name,
	}
	copied := *room
	c.mu.Unlock()

	c.logger.Info(context.Background(), "user joined room", "userId", userID, "roomId", roomID)
	for _, memberID := range members {
		if err := c.push.SendToUser(memberID, joined); err != nil {
			c.logger.Warn(context.Background(), "join notification failed", "userId", memberID, "error", err)
		}
	}
	return &copied, nil
}

// RequestJoin forwards a join request to the room owner.
func (c *Core) RequestJoin(userID, roomID string) error {
	c.mu.RLock()
	user, userOK := c.users[userID]
	room, roomOK := c.rooms[roomID]
	var alreadyIn bool
	var req model.JoinRequest
	var ownerID string
	if userOK && roomOK {
		alreadyIn = contains(room.UserIDs, userID)
		ownerID = room.OwnerID
		req = model.JoinRequest{
			RoomID:        room.ID,
			RoomName:      room.Name,
			RequesterID:   user.ID,
			RequesterName: user.Name,
		}
	}
	c.mu.RUnlock()

	if !userOK {
		return ErrUserNotFound
	}
	if !roomOK {
		return ErrRoomNotFound
	}
	if alreadyIn {
		return nil
	}

	if err := c.push.SendToUser(ownerID, req); err != nil {
		return fmt.Errorf("notify room owner: %w", err)
	}
	return nil
}

// ApproveJoin lets the room owner admit a requester.
func (c *Core) ApproveJoin(ownerID, requesterID, roomID string) error {
	c.mu.Lock()
	room, ok := c.rooms[roomID]
	if !ok {
		c.mu.Unlock()
		return ErrRoomNotFound
	}
	if room.OwnerID != ownerID {
		c.mu.Unlock()
		return ErrNotOwner
	}
	if !contains(room.ApprovedUserIDs, requesterID) {
		room.ApprovedUserIDs = append(room.ApprovedUserIDs, requesterID)
	}
	c.mu.Unlock()

	_, err := c.JoinRoom(requesterID, roomID)
	return err
}

// LeaveRoom removes a user from their room. Ownership passes to the
// first remaining member; a room left with fewer than two members is
// deleted and the survivors are notified.
func (c *Core) LeaveRoom(userID string) error {
	c.mu.Lock()
	user, ok := c.users[userID]
	if !ok {
		c.mu.Unlock()
		return ErrUserNotFound
	}
	if user.RoomID == nil {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	room, ok := c.rooms[*user.RoomID]
	if !ok {
		c.mu.Unlock()
		return ErrRoomNotFound
	}

	for i, uid := range room.UserIDs {
		if uid == userID {
			room.UserIDs = append(room.UserIDs[:i], room.UserIDs[i+1:]...)
			break
		}
	}
	user.RoomID = nil
	remaining := append([]string{}, room.UserIDs...)

	if room.OwnerID == userID && len(remaining) > 0 {
		room.OwnerID = remaining[0]
	}

	left := model.UserLeft{
		RoomID:   room.ID,
		RoomName: room.Name,
		UserID:   user.ID,
		UserName: user.Name,
		OwnerID:  room.OwnerID,
	}

	deleteRoom := len(room.UserIDs) < 2
	var deleted model.RoomDeleted
	if deleteRoom {
		delete(c.rooms, room.ID)
		for _, uid := range remaining {
			if u, ok := c.users[uid]; ok {
				u.RoomID = nil
			}
		}
		deleted = model.RoomDeleted{RoomID: room.ID, RoomName: room.Name}
	}
	c.mu.Unlock()

	c.push.BroadcastToUsers(remaining, left, "")
	if deleteRoom && len(remaining) > 0 {
		c.push.BroadcastToUsers(remaining, deleted, "")
	}
	c.logger.Info(context.Background(), "user left room", "userId", userID, "roomId", left.RoomID, "roomDeleted", deleteRoom)
	return nil
}

// SendChat records a chat message as an operation on the room's log and
// pushes it to every member except the sender.
func (c *Core) SendChat(roomID, userID, message string) (*model.ChatMessage, error) {
	c.mu.RLock()
	user, userOK := c.users[userID]
	room, roomOK := c.rooms[roomID]
	var userName string
	var inRoom bool
	var members []string
	if userOK {
		userName = user.Name
		inRoom = user.RoomID != nil && *user.RoomID == roomID
	}
	if roomOK {
		members = append(members, room.UserIDs...)
	}
	c.mu.RUnlock()

	if !userOK {
		return nil, ErrUserNotFound
	}
	if !roomOK {
		return nil, ErrRoomNotFound
	}
	if !inRoom {
		return nil, ErrNotInRoom
	}

	safeMessage := sanitizeChatMessage(message)
	if safeMessage == "" {
		return nil, errors.New("message cannot be empty")
	}

	msg := &model.ChatMessage{
		ID:        fmt.Sprintf("msg_%d", time.Now().UnixNano()),
		RoomID:    roomID,
		UserID:    userID,
		UserName:  userName,
		Message:   safeMessage,
		Timestamp: c.now().Unix(),
	}
	item := &model.Item{ID: msg.ID, Type: model.ItemChat, Data: msg}
	c.history.AddOperation(roomID, model.OpAdd, msg.ID, item, userID, userName)

	c.push.BroadcastToUsers(members, model.ChatPosted{ChatMessage: *msg}, userID)
	return msg, nil
}

// ChatHistory returns the room's current chat state.
func (c *Core) ChatHistory(roomID string) []*model.ChatMessage {
	c.mu.RLock()
	_, ok := c.rooms[roomID]
	c.mu.RUnlock()
	if !ok {
		return []*model.ChatMessage{}
	}
	return c.history.ChatMessages(roomID)
}

// Operations returns a room's operation log after the given cursor.
func (c *Core) Operations(roomID, sinceID, sinceHash string) []*model.Operation {
	c.mu.RLock()
	_, ok := c.rooms[roomID]
	c.mu.RUnlock()
	if !ok {
		return []*model.Operation{}
	}
	return c.history.Operations(roomID, sinceID, sinceHash)
}

// UserInRoom reports room membership, for the API layer's access checks.
func (c *Core) UserInRoom(userID, roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	room, ok := c.rooms[roomID]
	return ok && contains(room.UserIDs, userID)
}

// DropUser removes a user whose push channel is gone: leaves their room
// and announces them offline.
func (c *Core) DropUser(userID string) {
	c.mu.RLock()
	user, ok := c.users[userID]
	inRoom := ok && user.RoomID != nil
	c.mu.RUnlock()
	if !ok {
		return
	}

	if inRoom {
		if err := c.LeaveRoom(userID); err != nil {
			c.logger.Warn(context.Background(), "leave on disconnect failed", "userId", userID, "error", err)
		}
	}

	c.mu.Lock()
	delete(c.users, userID)
	c.mu.Unlock()

	c.push.BroadcastToAll(model.UserOffline{UserID: userID})
	c.logger.Info(context.Background(), "user dropped", "userId", userID)
}

func (c *Core) cleanupEmptyRooms() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for roomID, room := range c.rooms {
		if len(room.UserIDs) == 0 {
			delete(c.rooms, roomID)
			c.logger.Info(context.Background(), "removed empty room", "roomId", roomID)
		}
	}
}

func (c *Core) cleanupExpiredInvites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, invite := range c.pendingInvites {
		if now.After(invite.ExpiresAt) {
			delete(c.pendingInvites, id)
		}
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
