// Package ingest normalizes heterogeneous drag-and-drop payloads into
// an ordered list of dropped files ready for backend hand-off. Drops
// arrive from embedding shells (webviews, window managers) in wildly
// different shapes; the ingestor tries them in fidelity order and falls
// back until something usable comes out.
package ingest

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

// encodeChunkSize is a multiple of 3 just under 32 KiB so chunk-wise
// base64 output concatenates into a valid stream without padding seams.
const encodeChunkSize = 32766

// FileHandle is one droppable file exposed by the shell.
type FileHandle interface {
	Name() string
	// Path returns the absolute filesystem path, or "" when the shell
	// sandboxes it away.
	Path() string
	Open() (io.ReadCloser, error)
}

// Entry is a node in a hierarchical drop listing. Directory entries
// list children in batches; a walker must keep requesting batches until
// an empty one is returned.
type Entry interface {
	Name() string
	IsDir() bool
	// ReadBatch returns the next batch of children of a directory
	// entry. An empty batch means the listing is exhausted.
	ReadBatch(ctx context.Context) ([]Entry, error)
	// File resolves a file entry to its handle.
	File(ctx context.Context) (FileHandle, error)
}

// Drop is the raw payload of one drop event.
type Drop struct {
	Entries []Entry      // hierarchical listing, highest fidelity
	Files   []FileHandle // flat file objects
	URIList string       // "text/uri-list" style payload, if any
	Strings []string     // per-item string payloads, scanned as a last resort
}

// DroppedFile is one normalized result: a name, the chain of directory
// names it was found under, an absolute path when one resolved, and a
// content handle.
type DroppedFile struct {
	Name string
	Rel  string
	Path string
	open func() (io.ReadCloser, error)
}

// Ingestor collects drops and hands their contents to the backend.
type Ingestor struct {
	logger logging.Logger
}

func New(logger logging.Logger) *Ingestor {
	return &Ingestor{logger: logger}
}

// Collect normalizes a drop into an ordered file list. Hierarchical
// entries win; flat file objects are the fallback. A drop with no
// usable files yields an empty list, which callers treat as a no-op.
func (ing *Ingestor) Collect(ctx context.Context, drop Drop) ([]DroppedFile, error) {
	files, err := ing.walkEntries(ctx, drop.Entries)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		for _, fh := range drop.Files {
			files = append(files, fromHandle(fh, ""))
		}
	}

	if len(files) == 0 {
		return nil, nil
	}

	paths := resolvePaths(drop)
	if len(paths) > 0 {
		assignPaths(files, paths)
	}
	return files, nil
}

// walkEntries flattens a hierarchical listing depth-first. A dropped
// directory is itself the root of its tree: its direct children carry an
// empty relative path, and only directory names below it accumulate.
func (ing *Ingestor) walkEntries(ctx context.Context, entries []Entry) ([]DroppedFile, error) {
	var files []DroppedFile
	var walk func(entry Entry, rel string, root bool) error
	walk = func(entry Entry, rel string, root bool) error {
		if !entry.IsDir() {
			fh, err := entry.File(ctx)
			if err != nil {
				ing.logger.Warn(ctx, "unreadable drop entry", "name", entry.Name(), "error", err)
				return nil
			}
			files = append(files, fromHandle(fh, rel))
			return nil
		}

		childRel := rel
		if !root {
			childRel = entry.Name()
			if rel != "" {
				childRel = rel + "/" + entry.Name()
			}
		}
		for {
			batch, err := entry.ReadBatch(ctx)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return nil
			}
			for _, child := range batch {
				if err := walk(child, childRel, false); err != nil {
					return err
				}
			}
		}
	}

	for _, entry := range entries {
		if err := walk(entry, "", true); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func fromHandle(fh FileHandle, rel string) DroppedFile {
	return DroppedFile{
		Name: fh.Name(),
		Rel:  rel,
		Path: fh.Path(),
		open: fh.Open,
	}
}

// resolvePaths merges every absolute-path source of the drop into one
// de-duplicated set keyed by base name: file:// URIs from the uri-list
// payload, native path properties, and file:// lines scanned out of
// string payloads. Files in different directories may share a base
// name, so each key holds every distinct path seen for it.
func resolvePaths(drop Drop) map[string][]string {
	seen := make(map[string]bool)
	paths := make(map[string][]string)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		base := filepath.Base(p)
		paths[base] = append(paths[base], p)
	}

	scan := func(text string) {
		scanner := bufio.NewScanner(strings.NewReader(text))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "file://") {
				continue
			}
			if u, err := url.Parse(line); err == nil && u.Path != "" {
				add(u.Path)
			}
		}
	}

	scan(drop.URIList)
	for _, fh := range drop.Files {
		add(fh.Path())
	}
	for _, s := range drop.Strings {
		scan(s)
	}
	return paths
}

// assignPaths matches resolved paths to collected files. A lone
// candidate for a base name is taken as-is; with several, the path must
// end in the file's relative directory chain, and a still-ambiguous
// match assigns nothing so the contents fallback reads the right bytes.
func assignPaths(files []DroppedFile, paths map[string][]string) {
	for i := range files {
		f := &files[i]
		if f.Path != "" {
			continue
		}
		candidates := paths[f.Name]
		if len(candidates) == 1 {
			f.Path = candidates[0]
			continue
		}
		want := "/" + f.Name
		if f.Rel != "" {
			want = "/" + f.Rel + "/" + f.Name
		}
		var match string
		for _, p := range candidates {
			if !strings.HasSuffix(p, want) {
				continue
			}
			if match != "" {
				match = ""
				break
			}
			match = p
		}
		f.Path = match
	}
}

// Payloads reads every collected file into a base64 payload for the
// data-carrying backend call. Contents are encoded in fixed-size chunks
// so no single buffer holds more than one chunk of raw bytes at a time.
func (ing *Ingestor) Payloads(ctx context.Context, files []DroppedFile) ([]model.DroppedFilePayload, error) {
	payloads := make([]model.DroppedFilePayload, 0, len(files))
	for _, f := range files {
		data, err := f.encode()
		if err != nil {
			ing.logger.Warn(ctx, "skipping unreadable dropped file", "name", f.Name, "error", err)
			continue
		}
		payloads = append(payloads, model.DroppedFilePayload{Name: f.Name, Rel: f.Rel, Data: data})
	}
	return payloads, nil
}

// encode reads from the resolved path when it is usable, falling back
// to the drop's own content handle when the path cannot be opened here.
func (f DroppedFile) encode() (string, error) {
	if f.Path != "" {
		if r, err := os.Open(f.Path); err == nil {
			defer r.Close()
			return encodeChunked(r)
		} else if f.open == nil {
			return "", err
		}
	}
	if f.open == nil {
		return "", os.ErrNotExist
	}
	r, err := f.open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	return encodeChunked(r)
}

func encodeChunked(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, encodeChunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sb.WriteString(base64.StdEncoding.EncodeToString(buf[:n]))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}
