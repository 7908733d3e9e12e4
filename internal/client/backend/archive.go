package backend

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"path"

	"github.com/goteamwork/roomsync/internal/model"
)

// PackArchive packs dropped-file payloads into a tar stream. Entry
// names preserve the relative path of each file within the drop so the
// receiver can recreate the folder structure.
func PackArchive(files []model.DroppedFilePayload) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Name, err)
		}
		name := f.Name
		if f.Rel != "" {
			name = path.Join(f.Rel, f.Name)
		}
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnpackArchive is the inverse of PackArchive.
func UnpackArchive(data []byte) ([]model.DroppedFilePayload, error) {
	tr := tar.NewReader(bytes.NewReader(data))
	var files []model.DroppedFilePayload
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		dir, name := path.Split(hdr.Name)
		files = append(files, model.DroppedFilePayload{
			Name: name,
			Rel:  path.Clean("/" + dir)[1:],
			Data: base64.StdEncoding.EncodeToString(content),
		})
	}
	return files, nil
}
