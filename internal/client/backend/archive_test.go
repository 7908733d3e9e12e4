package backend

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goteamwork/roomsync/internal/model"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestPackArchivePreservesFolderStructure(t *testing.T) {
	data, err := PackArchive([]model.DroppedFilePayload{
		{Name: "a.txt", Data: b64("aaa")},
		{Name: "b.txt", Rel: "sub", Data: b64("bbb")},
		{Name: "c.txt", Rel: "sub/deeper", Data: b64("ccc")},
	})
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(data))
	got := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(content)
	}

	assert.Equal(t, map[string]string{
		"a.txt":            "aaa",
		"sub/b.txt":        "bbb",
		"sub/deeper/c.txt": "ccc",
	}, got)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	in := []model.DroppedFilePayload{
		{Name: "a.txt", Data: b64("alpha")},
		{Name: "b.bin", Rel: "nested", Data: b64("beta")},
	}

	data, err := PackArchive(in)
	require.NoError(t, err)

	out, err := UnpackArchive(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPackArchiveRejectsBadBase64(t *testing.T) {
	_, err := PackArchive([]model.DroppedFilePayload{{Name: "a.txt", Data: "%%% not base64"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.txt")
}

func TestPackArchiveEmptyList(t *testing.T) {
	data, err := PackArchive(nil)
	require.NoError(t, err)

	out, err := UnpackArchive(data)
	require.NoError(t, err)
	assert.Empty(t, out)
}
