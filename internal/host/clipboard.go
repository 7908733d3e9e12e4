package host

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goteamwork/roomsync/internal/model"
)

// ErrNoArchive reports a download for an operation without stored data.
var ErrNoArchive = errors.New("no archive for operation")

// ErrNoPendingFiles reports a path hand-off where no submitted path
// verified on this host's filesystem.
var ErrNoPendingFiles = errors.New("no usable file paths")

// maxArchiveSize caps one uploaded archive at 10 GiB.
const maxArchiveSize = 10 << 30

// archiveStore keeps file contents for clipboard operations. Uploaded
// archives are stored as bytes; path hand-offs keep only the verified
// paths and are packed from disk on first download. The history log
// carries only metadata either way.
type archiveStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	pending map[string][]string
}

func newArchiveStore() *archiveStore {
	return &archiveStore{
		data:    make(map[string][]byte),
		pending: make(map[string][]string),
	}
}

func (s *archiveStore) put(opID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[opID] = data
	delete(s.pending, opID)
}

func (s *archiveStore) get(opID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[opID]
	return d, ok
}

func (s *archiveStore) putPaths(opID string, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[opID] = paths
}

func (s *archiveStore) paths(opID string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[opID]
	return p, ok
}

// ShareClipboard records a clipboard item on the sharer's room log and
// broadcasts the resulting operation to the room. Text payloads are
// sanitized; file items start not ready until their archive arrives.
func (c *Core) ShareClipboard(userID, userName string, item model.ClipboardItem) (*model.Operation, error) {
	c.mu.RLock()
	user, ok := c.users[userID]
	var roomID string
	var members []string
	if ok && user.RoomID != nil {
		roomID = *user.RoomID
		if room, exists := c.rooms[roomID]; exists {
			members = append(members, room.UserIDs...)
		}
		if userName == "" {
			userName = user.Name
		}
	}
	c.mu.RUnlock()

	if !ok {
		return nil, ErrUserNotFound
	}
	if roomID == "" {
		return nil, ErrNotInRoom
	}

	if item.Type == model.ClipboardText {
		item.Text = sanitizeClipboardText(item.Text)
		item.Ready = true
	}

	itemID := fmt.Sprintf("clip_%d", time.Now().UnixNano())
	histItem := &model.Item{ID: itemID, Type: model.ItemClipboard, Data: &item}
	op := c.history.AddOperation(roomID, model.OpAdd, itemID, histItem, userID, userName)

	c.logger.Info(context.Background(), "clipboard shared",
		"userId", userID, "roomId", roomID, "type", item.Type, "files", len(item.Files))
	c.push.BroadcastToUsers(members, model.ClipboardCopied{Op: *op}, "")
	return op, nil
}

// AttachArchive stores the packed file contents for a clipboard
// operation and republishes the item as ready for download.
func (c *Core) AttachArchive(opID string, data []byte) error {
	if len(data) > maxArchiveSize {
		return fmt.Errorf("archive exceeds %d bytes", maxArchiveSize)
	}
	op, _ := c.history.FindOperation(opID)
	if op == nil {
		return fmt.Errorf("operation %s: %w", opID, ErrNoArchive)
	}
	if op.Item.Clipboard() == nil {
		return fmt.Errorf("operation %s is not a clipboard item", opID)
	}

	c.archives.put(opID, data)
	_, err := c.publishReady(opID)
	return err
}

// SavePendingFiles shares files the host can read directly: each path
// is canonicalized and verified on this filesystem, the item goes ready
// immediately, and the archive is packed from disk on first download.
// Unverifiable paths are skipped; nothing verifying at all is an error.
func (c *Core) SavePendingFiles(userID, userName string, paths []string) (*model.Operation, []string, error) {
	canonical := make([]string, 0, len(paths))
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err == nil {
			var info os.FileInfo
			if info, err = os.Stat(abs); err == nil && !info.Mode().IsRegular() {
				err = fmt.Errorf("not a regular file")
			}
		}
		if err != nil {
			c.logger.Warn(context.Background(), "skipping pending file", "path", p, "error", err)
			continue
		}
		canonical = append(canonical, abs)
		names = append(names, filepath.Base(abs))
	}
	if len(canonical) == 0 {
		return nil, nil, ErrNoPendingFiles
	}

	item := model.ClipboardItem{Type: model.ClipboardFile, Files: names, FileCount: len(names)}
	op, err := c.ShareClipboard(userID, userName, item)
	if err != nil {
		return nil, nil, err
	}

	c.archives.putPaths(op.ID, canonical)
	updated, err := c.publishReady(op.ID)
	if err != nil {
		return nil, nil, err
	}
	return updated, canonical, nil
}

// publishReady records a ready-for-download update for a clipboard
// operation and broadcasts it to the room.
func (c *Core) publishReady(opID string) (*model.Operation, error) {
	op, roomID := c.history.FindOperation(opID)
	if op == nil {
		return nil, fmt.Errorf("operation %s: %w", opID, ErrNoArchive)
	}
	clip := op.Item.Clipboard()
	if clip == nil {
		return nil, fmt.Errorf("operation %s is not a clipboard item", opID)
	}

	ready := *clip
	ready.Ready = true
	ready.DownloadID = opID
	item := &model.Item{ID: op.ItemID, Type: model.ItemClipboard, Data: &ready}
	updated := c.history.AddOperation(roomID, model.OpUpdate, op.ItemID, item, op.UserID, op.UserName)

	c.mu.RLock()
	var members []string
	if room, ok := c.rooms[roomID]; ok {
		members = append(members, room.UserIDs...)
	}
	c.mu.RUnlock()

	c.push.BroadcastToUsers(members, model.ClipboardUpdated{Op: *updated}, "")
	return updated, nil
}

// Archive returns the stored contents for a clipboard operation. Path
// hand-offs are packed from disk the first time they are requested.
func (c *Core) Archive(opID string) ([]byte, error) {
	if data, ok := c.archives.get(opID); ok {
		return data, nil
	}
	paths, ok := c.archives.paths(opID)
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", opID, ErrNoArchive)
	}
	data, err := packPaths(paths)
	if err != nil {
		return nil, fmt.Errorf("pack operation %s: %w", opID, err)
	}
	c.archives.put(opID, data)
	return data, nil
}

// packPaths tars files from disk under their base names.
func packPaths(paths []string) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		hdr := &tar.Header{
			Name: filepath.Base(p),
			Mode: 0o644,
			Size: info.Size(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			f.Close()
			return nil, err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return nil, err
		}
		f.Close()
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
