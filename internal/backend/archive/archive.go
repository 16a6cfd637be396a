package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrInvalidPath is returned for path components or lookups that would leave the archive root
	ErrInvalidPath = errors.New("invalid archive path")
	// ErrDecode is returned when an image payload cannot be decoded or processed
	ErrDecode = errors.New("invalid image data")
)

// Role names one of the images stored per ingestion
type Role string

const (
	RoleOriginal  Role = "original"
	RoleBinary    Role = "binary"
	RoleAnnotated Role = "annotated"
)

// Roles lists every role in storage order
var Roles = []Role{RoleOriginal, RoleBinary, RoleAnnotated}

const fileExtension = ".jpg"

// Processor transforms decoded image bytes before they are written
type Processor interface {
	Execute(imageData []byte) ([]byte, error)
}

// Archive stores images below a base directory laid out as <device>/<timestamp>/<role>.jpg.
// All file access goes through an os.Root so nothing can escape the base directory.
type Archive struct {
	baseDir      string
	root         *os.Root
	processor    Processor
	writeTimeout time.Duration
}

// Batch describes the files written for one ingestion
type Batch struct {
	Dir        string          // relative directory, slash separated
	Paths      map[Role]string // relative file paths, slash separated
	createdDir bool            // the directory did not exist before this batch
}

// New opens (and creates if needed) the archive rooted at baseDir.
// processor may be nil to store decoded bytes as-is.
func New(baseDir string, processor Processor, writeTimeout time.Duration) (*Archive, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload folder: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload folder: %w", err)
	}
	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload folder: %w", err)
	}

	return &Archive{
		baseDir:      absPath,
		root:         root,
		processor:    processor,
		writeTimeout: writeTimeout,
	}, nil
}

// BaseDir returns the absolute archive root
func (a *Archive) BaseDir() string {
	return a.baseDir
}

func (a *Archive) Close() error {
	return a.root.Close()
}

// SanitizeTimestamp makes a caller-supplied timestamp usable as a path component
func SanitizeTimestamp(timestamp string) string {
	return strings.ReplaceAll(timestamp, ":", "-")
}

// sanitizeComponent replaces every character outside [A-Za-z0-9._-] with '_' and rejects
// components that are empty or consist only of dots.
func sanitizeComponent(component string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(component) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return "", fmt.Errorf("%w: component %q", ErrInvalidPath, component)
	}
	return out, nil
}

// Dir returns the relative directory for a device reading
func Dir(deviceCode, timestamp string) (string, error) {
	device, err := sanitizeComponent(deviceCode)
	if err != nil {
		return "", err
	}
	ts, err := sanitizeComponent(SanitizeTimestamp(timestamp))
	if err != nil {
		return "", err
	}
	return path.Join(device, ts), nil
}

// Store processes and writes the given images. Every image is processed before anything is
// written, so undecodable input leaves the disk untouched. Existing files at the same paths
// are overwritten.
func (a *Archive) Store(ctx context.Context, deviceCode, timestamp string, images map[Role][]byte) (*Batch, error) {
	batch := &Batch{Paths: make(map[Role]string, len(images))}
	if len(images) == 0 {
		return batch, nil
	}

	dir, err := Dir(deviceCode, timestamp)
	if err != nil {
		return nil, err
	}
	batch.Dir = dir

	processed := make(map[Role][]byte, len(images))
	for _, role := range Roles {
		data, ok := images[role]
		if !ok {
			continue
		}
		if a.processor != nil {
			data, err = a.processor.Execute(data)
			if err != nil {
				return nil, fmt.Errorf("%w: %s image: %v", ErrDecode, role, err)
			}
		}
		processed[role] = data
	}

	nativeDir := filepath.FromSlash(dir)
	if _, err := a.root.Stat(nativeDir); errors.Is(err, fs.ErrNotExist) {
		batch.createdDir = true
	}
	if err := a.root.MkdirAll(nativeDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	for _, role := range Roles {
		data, ok := processed[role]
		if !ok {
			continue
		}
		rel := path.Join(dir, string(role)+fileExtension)
		if err := a.writeFile(ctx, rel, data); err != nil {
			return batch, err
		}
		batch.Paths[role] = rel
	}

	slog.Debug("archive: stored images", "dir", dir, "count", len(batch.Paths), "created_dir", batch.createdDir)
	return batch, nil
}

// writeFile writes to a temporary name and renames it into place, bounded by the write timeout
func (a *Archive) writeFile(ctx context.Context, rel string, data []byte) error {
	if a.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.writeTimeout)
		defer cancel()
	}

	name := filepath.FromSlash(rel)
	tmp := name + ".tmp"
	done := make(chan error, 1)
	go func() {
		if err := a.root.WriteFile(tmp, data, 0o640); err != nil {
			done <- err
			return
		}
		done <- a.root.Rename(tmp, name)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", rel, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to write %s: %w", rel, ctx.Err())
	}
}

// Discard removes what a failed ingestion left behind when the batch created its directory:
// the batch's own files, then the directory if nothing else was written into it meanwhile.
// Files overwritten in a pre-existing directory stay in place. A concurrent ingestion for the
// same device and timestamp writes the same file names, so its files can still be removed
// here; that is the same last-writer-wins collision accepted for overwrites.
func (a *Archive) Discard(batch *Batch) error {
	if batch == nil || !batch.createdDir || batch.Dir == "" {
		return nil
	}
	var errs []error
	for _, rel := range batch.Paths {
		if err := a.root.Remove(filepath.FromSlash(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", rel, err))
		}
	}
	if err := a.root.Remove(filepath.FromSlash(batch.Dir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Debug("archive: kept non-empty directory of failed ingestion", "dir", batch.Dir, "error", err)
	}
	return errors.Join(errs...)
}

// Open opens a regular file by its slash-separated path relative to the archive root
func (a *Archive) Open(relPath string) (*os.File, fs.FileInfo, error) {
	cleaned := path.Clean("/" + relPath)[1:]
	if cleaned == "" || strings.Contains(relPath, "\x00") || strings.Contains(relPath, `\`) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	for _, part := range strings.Split(relPath, "/") {
		if part == ".." {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
		}
	}

	file, err := a.root.Open(filepath.FromSlash(cleaned))
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		_ = file.Close()
		return nil, nil, fs.ErrNotExist
	}
	return file, info, nil
}
