package host

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goteamwork/roomsync/internal/model"
)

func TestShareClipboardText(t *testing.T) {
	c := newTestCore(t)
	alice, _, _, _, bobCh := pair(t, c)

	op, err := c.ShareClipboard(alice.ID, "", model.ClipboardItem{
		Type: model.ClipboardText,
		Text: "  copied text​  ",
	})
	require.NoError(t, err)

	clip := op.Item.Clipboard()
	require.NotNil(t, clip)
	assert.Equal(t, "copied text", clip.Text)
	assert.True(t, clip.Ready) // text needs no upload phase
	assert.Equal(t, "Alice", op.UserName)

	copied := expectEvent(t, bobCh, model.EventClipboardCopied).(model.ClipboardCopied)
	assert.Equal(t, op.ID, copied.Op.ID)
}

func TestShareClipboardRequiresRoom(t *testing.T) {
	c := newTestCore(t)
	carol, _ := addUser(t, c, "Carol")

	_, err := c.ShareClipboard(carol.ID, "", model.ClipboardItem{Type: model.ClipboardText, Text: "x"})
	assert.ErrorIs(t, err, ErrNotInRoom)

	_, err = c.ShareClipboard("user_404", "", model.ClipboardItem{Type: model.ClipboardText, Text: "x"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestFileShareReadyTransition(t *testing.T) {
	c := newTestCore(t)
	alice, _, roomID, _, bobCh := pair(t, c)

	op, err := c.ShareClipboard(alice.ID, "Alice", model.ClipboardItem{
		Type:      model.ClipboardFile,
		Files:     []string{"a.txt", "b.txt"},
		FileCount: 2,
	})
	require.NoError(t, err)
	assert.False(t, op.Item.Clipboard().Ready)
	drain(bobCh)

	archive := []byte("tar-bytes")
	require.NoError(t, c.AttachArchive(op.ID, archive))

	// the update shares the placeholder's item id
	updated := expectEvent(t, bobCh, model.EventClipboardUpdated).(model.ClipboardUpdated)
	assert.Equal(t, op.ItemID, updated.Op.ItemID)
	assert.Equal(t, model.OpUpdate, updated.Op.OpType)
	clip := updated.Op.Item.Clipboard()
	require.NotNil(t, clip)
	assert.True(t, clip.Ready)
	assert.Equal(t, op.ID, clip.DownloadID)

	// both operations stay on the log
	assert.Len(t, c.Operations(roomID, "", ""), 2)

	data, err := c.Archive(op.ID)
	require.NoError(t, err)
	assert.Equal(t, archive, data)
}

func TestSavePendingFiles(t *testing.T) {
	c := newTestCore(t)
	alice, _, roomID, _, bobCh := pair(t, c)

	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.txt")
	bPath := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(aPath, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(bPath, []byte("beta"), 0o644))

	op, canonical, err := c.SavePendingFiles(alice.ID, "Alice", []string{aPath, bPath})
	require.NoError(t, err)
	assert.Equal(t, []string{aPath, bPath}, canonical)

	clip := op.Item.Clipboard()
	require.NotNil(t, clip)
	assert.True(t, clip.Ready) // contents are already on this host's disk
	assert.Equal(t, []string{"a.txt", "b.txt"}, clip.Files)
	assert.NotEmpty(t, clip.DownloadID)

	// announce then ready update, like the upload route
	copied := expectEvent(t, bobCh, model.EventClipboardCopied).(model.ClipboardCopied)
	assert.False(t, copied.Op.Item.Clipboard().Ready)
	updated := expectEvent(t, bobCh, model.EventClipboardUpdated).(model.ClipboardUpdated)
	assert.Equal(t, copied.Op.ItemID, updated.Op.ItemID)
	assert.True(t, updated.Op.Item.Clipboard().Ready)
	assert.Len(t, c.Operations(roomID, "", ""), 2)

	// the archive is packed from disk on first download
	data, err := c.Archive(clip.DownloadID)
	require.NoError(t, err)
	tr := tar.NewReader(bytes.NewReader(data))
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "a.txt", hdr.Name)
	contents, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(contents))
	hdr, err = tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "b.txt", hdr.Name)
}

func TestSavePendingFilesSkipsUnusablePaths(t *testing.T) {
	c := newTestCore(t)
	alice, _, _, _, _ := pair(t, c)

	_, _, err := c.SavePendingFiles(alice.ID, "Alice", []string{"/nonexistent/a.txt"})
	assert.ErrorIs(t, err, ErrNoPendingFiles)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("ok"), 0o644))

	// directories and missing files are skipped, usable paths survive
	op, canonical, err := c.SavePendingFiles(alice.ID, "Alice", []string{dir, "/nonexistent/a.txt", good})
	require.NoError(t, err)
	assert.Equal(t, []string{good}, canonical)
	assert.Equal(t, []string{"good.txt"}, op.Item.Clipboard().Files)
}

func TestAttachArchiveValidation(t *testing.T) {
	c := newTestCore(t)
	alice, _, roomID, _, _ := pair(t, c)

	err := c.AttachArchive("op_404", []byte("x"))
	assert.ErrorIs(t, err, ErrNoArchive)

	// chat operations carry no archive
	_, err = c.SendChat(roomID, alice.ID, "hi")
	require.NoError(t, err)
	ops := c.Operations(roomID, "", "")
	require.Len(t, ops, 1)
	assert.Error(t, c.AttachArchive(ops[0].ID, []byte("x")))
}

func TestArchiveMissing(t *testing.T) {
	c := newTestCore(t)
	_, err := c.Archive("op_404")
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestShareClipboardTextCapped(t *testing.T) {
	c := newTestCore(t)
	alice, _, _, _, _ := pair(t, c)

	op, err := c.ShareClipboard(alice.ID, "", model.ClipboardItem{
		Type: model.ClipboardText,
		Text: strings.Repeat("x", maxClipboardTextLen+100),
	})
	require.NoError(t, err)
	assert.Len(t, op.Item.Clipboard().Text, maxClipboardTextLen)
}
