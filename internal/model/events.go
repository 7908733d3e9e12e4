package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType names one kind of push event. The set is closed and defined by
// the host protocol; Disconnected is synthesized locally by the stream when
// the push channel drops.
type EventType string

const (
	EventConnected        EventType = "connected"
	EventUserCreated      EventType = "user_created"
	EventUserOffline      EventType = "user_offline"
	EventUserLeft         EventType = "user_left"
	EventUserInvited      EventType = "user_invited"
	EventUserJoined       EventType = "user_joined"
	EventJoinRequest      EventType = "join_request"
	EventRoomCreated      EventType = "room_created"
	EventRoomDeleted      EventType = "room_deleted"
	EventChatMessage      EventType = "chat_message"
	EventClipboardCopied  EventType = "clipboard_copied"
	EventClipboardUpdated EventType = "clipboard_updated"
	EventHeartbeat        EventType = "heartbeat"
	EventDisconnected     EventType = "disconnected"
)

// ErrUnknownEventType reports an envelope type outside the closed set.
// Callers are expected to discard such envelopes without failing.
var ErrUnknownEventType = errors.New("unknown event type")

// Envelope is the wire wrapper carried by the push channel.
type Envelope struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Event is the closed union of decoded push-event payloads.
type Event interface {
	EventType() EventType
}

// Connected confirms the push channel after (re)connect.
type Connected struct {
	Status string `json:"status"`
}

func (Connected) EventType() EventType { return EventConnected }

// Disconnected is synthesized locally when the push channel drops.
type Disconnected struct{}

func (Disconnected) EventType() EventType { return EventDisconnected }

// Heartbeat is a keep-alive; consumers normally ignore it.
type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}

func (Heartbeat) EventType() EventType { return EventHeartbeat }

// UserCreated announces a new user in the lobby.
type UserCreated struct {
	User
}

func (UserCreated) EventType() EventType { return EventUserCreated }

// UserOffline announces a user leaving the system.
type UserOffline struct {
	UserID string `json:"userId"`
}

func (UserOffline) EventType() EventType { return EventUserOffline }

// UserJoined announces a user entering a room.
type UserJoined struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (UserJoined) EventType() EventType { return EventUserJoined }

// UserLeft announces a user leaving a room; OwnerID reflects any ownership
// handover that happened as a result.
type UserLeft struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	OwnerID  string `json:"ownerId,omitempty"`
}

func (UserLeft) EventType() EventType { return EventUserLeft }

// RoomCreated announces a new room.
type RoomCreated struct {
	Room
}

func (RoomCreated) EventType() EventType { return EventRoomCreated }

// RoomDeleted announces a room being torn down.
type RoomDeleted struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

func (RoomDeleted) EventType() EventType { return EventRoomDeleted }

// InviteOffer is an inbound invitation. ExpiresAt is absolute epoch seconds,
// host-assigned; RoomID/RoomName are set only when the invite targets an
// existing room.
type InviteOffer struct {
	InviteID    string `json:"inviteId"`
	InviterID   string `json:"inviterId"`
	InviterName string `json:"inviter"`
	Message     string `json:"message"`
	ExpiresAt   int64  `json:"expiresAt"`
	RoomID      string `json:"roomId,omitempty"`
	RoomName    string `json:"roomName,omitempty"`
}

func (InviteOffer) EventType() EventType { return EventUserInvited }

// JoinRequest asks a room owner to admit a user. It carries no expiry; it is
// cleared only by an explicit approve or reject.
type JoinRequest struct {
	RoomID        string `json:"roomId"`
	RoomName      string `json:"roomName"`
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
}

func (JoinRequest) EventType() EventType { return EventJoinRequest }

// ChatPosted carries one chat message delivered via push.
type ChatPosted struct {
	ChatMessage
}

func (ChatPosted) EventType() EventType { return EventChatMessage }

// ClipboardCopied carries the full operation recording a new shared item.
type ClipboardCopied struct {
	Op Operation
}

func (ClipboardCopied) EventType() EventType { return EventClipboardCopied }

// ClipboardUpdated carries the full replacement operation for an existing
// item (the placeholder-to-ready transition).
type ClipboardUpdated struct {
	Op Operation
}

func (ClipboardUpdated) EventType() EventType { return EventClipboardUpdated }

// EncodeEvent wraps a typed payload into a wire envelope. Embedding
// wrappers (UserCreated, ChatPosted, ...) serialize their inner value so
// the data field matches what DecodeEvent expects.
func EncodeEvent(ev Event, timestamp int64) (Envelope, error) {
	var payload any = ev
	switch v := ev.(type) {
	case UserCreated:
		payload = v.User
	case RoomCreated:
		payload = v.Room
	case ChatPosted:
		payload = v.ChatMessage
	case ClipboardCopied:
		payload = v.Op
	case ClipboardUpdated:
		payload = v.Op
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s event: %w", ev.EventType(), err)
	}
	return Envelope{Type: ev.EventType(), Data: data, Timestamp: timestamp}, nil
}

// DecodeEvent turns a wire envelope into its typed payload. The data field is
// decoded exactly once here; everything downstream works with the union.
func DecodeEvent(env Envelope) (Event, error) {
	decode := func(v any) error {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("decode %s event: %w", env.Type, err)
		}
		return nil
	}

	switch env.Type {
	case EventConnected:
		ev := Connected{}
		return ev, decode(&ev)
	case EventHeartbeat:
		ev := Heartbeat{}
		return ev, decode(&ev)
	case EventUserCreated:
		ev := UserCreated{}
		return ev, decode(&ev.User)
	case EventUserOffline:
		ev := UserOffline{}
		return ev, decode(&ev)
	case EventUserLeft:
		ev := UserLeft{}
		return ev, decode(&ev)
	case EventUserJoined:
		ev := UserJoined{}
		return ev, decode(&ev)
	case EventJoinRequest:
		ev := JoinRequest{}
		return ev, decode(&ev)
	case EventRoomCreated:
		ev := RoomCreated{}
		return ev, decode(&ev.Room)
	case EventRoomDeleted:
		ev := RoomDeleted{}
		return ev, decode(&ev)
	case EventUserInvited:
		ev := InviteOffer{}
		return ev, decode(&ev)
	case EventChatMessage:
		ev := ChatPosted{}
		return ev, decode(&ev.ChatMessage)
	case EventClipboardCopied:
		ev := ClipboardCopied{}
		return ev, decode(&ev.Op)
	case EventClipboardUpdated:
		ev := ClipboardUpdated{}
		return ev, decode(&ev.Op)
	case EventDisconnected:
		return Disconnected{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
}
