// Package backend abstracts the transport between the client session and
// the room service. Two implementations exist: HTTPBackend talks to a
// remote host over REST+SSE, LocalBackend calls an in-process host core
// directly. The session picks one at startup and never switches.
package backend

import (
	"context"
	"errors"

	"github.com/goteamwork/roomsync/internal/model"
)

var (
	// ErrUnavailable wraps network-level failures: the host cannot be
	// reached at all.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrUnauthorized means the bearer token was missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected means the host understood the request and refused it.
	ErrRejected = errors.New("request rejected")
)

// Backend is the operation surface the session needs from a host,
// regardless of whether that host is remote or in-process.
type Backend interface {
	// Connect verifies the host is reachable before the session starts.
	Connect(ctx context.Context) error

	// CreateUser registers an identity and returns the created user
	// plus the bearer token for subsequent calls.
	CreateUser(ctx context.Context, name string) (*model.User, string, error)

	FetchUsers(ctx context.Context) ([]model.User, error)
	FetchRooms(ctx context.Context) ([]model.Room, error)

	// FetchOperations returns the operation log for a room. An empty
	// sinceID requests the full snapshot; sinceHash lets the host
	// detect a diverged cursor and force a full resync.
	FetchOperations(ctx context.Context, roomID, sinceID, sinceHash string) ([]model.Operation, error)

	FetchChatHistory(ctx context.Context, roomID string) ([]model.ChatMessage, error)
	SendChatMessage(ctx context.Context, roomID, userID, message string) error

	// ShareClipboard records a clipboard item as a new operation on the
	// user's room and returns the created operation.
	ShareClipboard(ctx context.Context, userID, userName string, item model.ClipboardItem) (*model.Operation, error)
	// UploadArchive attaches the packed file contents to a previously
	// shared clipboard operation.
	UploadArchive(ctx context.Context, opID string, data []byte) error
	// DownloadArchive fetches the packed file contents of an operation.
	DownloadArchive(ctx context.Context, opID string) ([]byte, error)

	// InviteUser offers room membership to another user. Returns the
	// invite id and its authoritative expiry in epoch seconds.
	InviteUser(ctx context.Context, inviteeID, inviterID, message string) (string, int64, error)
	// AcceptInvite consumes an offer and returns the room joined.
	AcceptInvite(ctx context.Context, inviteID, inviteeID string) (string, error)

	RequestJoin(ctx context.Context, userID, roomID string) error
	ApproveJoin(ctx context.Context, ownerID, requesterID, roomID string) error
	JoinRoom(ctx context.Context, userID, roomID string) error
	LeaveRoom(ctx context.Context, userID string) error

	// SavePendingFiles hands dropped files over by absolute path, for
	// hosts that share a filesystem with this client. The host verifies
	// and canonicalizes each path and publishes the operation without
	// the contents ever crossing the transport.
	SavePendingFiles(ctx context.Context, userID, userName string, paths []string) (*model.Operation, []string, error)

	// SaveDroppedFiles is the contents fallback for payloads collected
	// by the drop ingestor: a clipboard operation announcing the file
	// names, followed by the packed contents.
	SaveDroppedFiles(ctx context.Context, userID, userName string, files []model.DroppedFilePayload) (*model.Operation, error)

	// StreamURL returns the push-channel endpoint for the given user,
	// or "" when the backend delivers events in-process.
	StreamURL(userID string) string
}
