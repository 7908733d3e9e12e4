// Package model defines the wire-level data model shared by the client
// packages and the host core: users, rooms, feed operations and the typed
// push-event union. All JSON tags match the host REST/SSE protocol.
package model

// User is a participant known to the host.
type User struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	RoomID   *string `json:"roomId,omitempty"` // nil when not in a room
	IsOnline bool    `json:"isOnline"`
}

// Room is a collaboration room. ApprovedUserIDs holds users allowed to
// join owner-gated rooms (invited or approved by the owner); it is host
// bookkeeping and never serialized to clients.
type Room struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	OwnerID         string   `json:"ownerId,omitempty"`
	UserIDs         []string `json:"userIds"`
	ApprovedUserIDs []string `json:"-"`
}

// ChatMessage is one message in a room's chat feed.
type ChatMessage struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ClipboardItemType discriminates shared-clipboard payloads.
type ClipboardItemType string

const (
	ClipboardText  ClipboardItemType = "text"
	ClipboardImage ClipboardItemType = "image"
	ClipboardFile  ClipboardItemType = "file"
)

// ClipboardItem is one shared-clipboard entry. File items start as a
// placeholder (Ready=false while the host compresses the file set) and are
// later superseded by a ready item carrying a download reference; the
// transition arrives as a new operation sharing the ItemID.
type ClipboardItem struct {
	Type       ClipboardItemType `json:"type"`
	Text       string            `json:"text,omitempty"`
	Image      []byte            `json:"image,omitempty"` // PNG encoded
	Files      []string          `json:"files,omitempty"` // file paths on the sharing side
	FileCount  int               `json:"fileCount,omitempty"`
	Ready      bool              `json:"ready"`
	DownloadID string            `json:"downloadId,omitempty"`
}

// APIResponse is the generic reply of the host's mutating endpoints.
// Optional fields are populated per endpoint (inviteId/expiresAt for
// /api/invite, roomId for /api/invite/accept).
type APIResponse struct {
	Message   string `json:"message"`
	RoomID    string `json:"roomId,omitempty"`
	InviteID  string `json:"inviteId,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// CreateUserResponse carries the created user plus its bearer token.
type CreateUserResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// PendingFilesResponse is the reply to a path-based file hand-off: the
// published operation plus the canonicalized paths the host verified.
type PendingFilesResponse struct {
	Op             Operation `json:"op"`
	CanonicalPaths []string  `json:"canonicalPaths"`
}

// DroppedFilePayload is the base64 fallback for drag-and-drop hand-off when
// no absolute path could be resolved for the dropped files.
type DroppedFilePayload struct {
	Name string `json:"name"`
	Rel  string `json:"rel,omitempty"`
	Data string `json:"data"` // base64-encoded contents
}
