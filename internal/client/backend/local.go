package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/goteamwork/roomsync/internal/host"
	"github.com/goteamwork/roomsync/internal/model"
)

// LocalBackend implements Backend by calling an in-process host core
// directly. It serves the hosting side of a session: the same client
// code paths run whether the host is remote or this process.
type LocalBackend struct {
	core *host.Core
}

func NewLocalBackend(core *host.Core) *LocalBackend {
	return &LocalBackend{core: core}
}

func (b *LocalBackend) Connect(ctx context.Context) error { return nil }

func (b *LocalBackend) CreateUser(ctx context.Context, name string) (*model.User, string, error) {
	user, token, err := b.core.CreateUser(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return user, token, nil
}

func (b *LocalBackend) FetchUsers(ctx context.Context) ([]model.User, error) {
	return b.core.Users(), nil
}

func (b *LocalBackend) FetchRooms(ctx context.Context) ([]model.Room, error) {
	return b.core.Rooms(), nil
}

func (b *LocalBackend) FetchOperations(ctx context.Context, roomID, sinceID, sinceHash string) ([]model.Operation, error) {
	ops := b.core.Operations(roomID, sinceID, sinceHash)
	result := make([]model.Operation, 0, len(ops))
	for _, op := range ops {
		result = append(result, *op)
	}
	return result, nil
}

func (b *LocalBackend) FetchChatHistory(ctx context.Context, roomID string) ([]model.ChatMessage, error) {
	msgs := b.core.ChatHistory(roomID)
	result := make([]model.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, *m)
	}
	return result, nil
}

func (b *LocalBackend) SendChatMessage(ctx context.Context, roomID, userID, message string) error {
	if _, err := b.core.SendChat(roomID, userID, message); err != nil {
		return reject(err)
	}
	return nil
}

func (b *LocalBackend) ShareClipboard(ctx context.Context, userID, userName string, item model.ClipboardItem) (*model.Operation, error) {
	op, err := b.core.ShareClipboard(userID, userName, item)
	if err != nil {
		return nil, reject(err)
	}
	return op, nil
}

func (b *LocalBackend) UploadArchive(ctx context.Context, opID string, data []byte) error {
	if err := b.core.AttachArchive(opID, data); err != nil {
		return reject(err)
	}
	return nil
}

func (b *LocalBackend) DownloadArchive(ctx context.Context, opID string) ([]byte, error) {
	data, err := b.core.Archive(opID)
	if err != nil {
		return nil, reject(err)
	}
	return data, nil
}

func (b *LocalBackend) InviteUser(ctx context.Context, inviteeID, inviterID, message string) (string, int64, error) {
	inviteID, expiresAt, err := b.core.Invite(inviteeID, inviterID, message)
	if err != nil {
		return "", 0, reject(err)
	}
	return inviteID, expiresAt, nil
}

func (b *LocalBackend) AcceptInvite(ctx context.Context, inviteID, inviteeID string) (string, error) {
	roomID, err := b.core.AcceptInvite(inviteID, inviteeID)
	if err != nil {
		return "", reject(err)
	}
	return roomID, nil
}

func (b *LocalBackend) RequestJoin(ctx context.Context, userID, roomID string) error {
	return reject(b.core.RequestJoin(userID, roomID))
}

func (b *LocalBackend) ApproveJoin(ctx context.Context, ownerID, requesterID, roomID string) error {
	return reject(b.core.ApproveJoin(ownerID, requesterID, roomID))
}

func (b *LocalBackend) JoinRoom(ctx context.Context, userID, roomID string) error {
	if _, err := b.core.JoinRoom(userID, roomID); err != nil {
		return reject(err)
	}
	return nil
}

func (b *LocalBackend) LeaveRoom(ctx context.Context, userID string) error {
	return reject(b.core.LeaveRoom(userID))
}

func (b *LocalBackend) SavePendingFiles(ctx context.Context, userID, userName string, paths []string) (*model.Operation, []string, error) {
	op, canonical, err := b.core.SavePendingFiles(userID, userName, paths)
	if err != nil {
		return nil, nil, reject(err)
	}
	return op, canonical, nil
}

func (b *LocalBackend) SaveDroppedFiles(ctx context.Context, userID, userName string, files []model.DroppedFilePayload) (*model.Operation, error) {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	item := model.ClipboardItem{
		Type:      model.ClipboardFile,
		Files:     names,
		FileCount: len(files),
	}
	op, err := b.ShareClipboard(ctx, userID, userName, item)
	if err != nil {
		return nil, err
	}
	data, err := PackArchive(files)
	if err != nil {
		return nil, err
	}
	if err := b.UploadArchive(ctx, op.ID, data); err != nil {
		return nil, err
	}
	return op, nil
}

// StreamURL returns "" because local sessions receive events in-process
// via EventChannel.
func (b *LocalBackend) StreamURL(userID string) string { return "" }

// EventChannel subscribes the user to the in-process event feed.
func (b *LocalBackend) EventChannel(userID string) <-chan model.Envelope {
	return b.core.Push().Subscribe(userID, 64)
}

func reject(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRejected) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRejected, err)
}
