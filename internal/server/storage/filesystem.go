package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	ErrTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrOutsideBase = errors.New("path is outside the staging directory")
)

// Store defines the local staging area that holds an incoming file until it
// has been forwarded upstream.
type Store interface {
	Stage(field, originalName string, data io.Reader, maxBytes int64) (*StagedFile, error)
	Release(path string) error
	Sweep(olderThan time.Duration) (int, error)
	EnsureDir() error
}

// StagedFile is a file held in the staging area. Release is idempotent and
// safe to defer on every exit path.
type StagedFile struct {
	Path         string
	Name         string
	OriginalName string
	Size         int64

	store    Store
	once     sync.Once
	released error
}

// Release removes the staged file from disk.
func (f *StagedFile) Release() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		f.released = f.store.Release(f.Path)
		if f.released != nil {
			slog.Error("failed to release staged file", "path", f.Path, "error", f.released)
		}
	})
	return f.released
}

// FileSystemStore stages uploaded files on the local filesystem.
type FileSystemStore struct {
	basePath string
	now      func() time.Time
}

// NewFileSystemStore creates a new filesystem staging store.
func NewFileSystemStore(basePath string) *FileSystemStore {
	if abs, err := filepath.Abs(basePath); err == nil {
		basePath = abs
	}
	return &FileSystemStore{basePath: filepath.Clean(basePath), now: time.Now}
}

// EnsureDir creates the staging directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Stage writes data to a uniquely named file ({field}-{unixms}-{rand}{ext}).
// Data beyond maxBytes aborts the write with ErrTooLarge and leaves nothing behind.
func (fs *FileSystemStore) Stage(field, originalName string, data io.Reader, maxBytes int64) (*StagedFile, error) {
	name, err := fs.stagedName(field, originalName)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(fs.basePath, name)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file %s: %w", path, err)
	}

	src := data
	if maxBytes > 0 {
		src = io.LimitReader(data, maxBytes+1)
	}
	n, err := io.Copy(file, src)
	closeErr := file.Close()
	if err == nil && closeErr != nil {
		err = closeErr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		// Clean up partial file on error
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to write staged file: %w", err)
	}

	return &StagedFile{
		Path:         path,
		Name:         name,
		OriginalName: originalName,
		Size:         n,
		store:        fs,
	}, nil
}

// Release removes a staged file. Missing files and empty paths are not errors.
func (fs *FileSystemStore) Release(path string) error {
	if path == "" {
		return nil
	}
	clean, err := fs.within(path)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staged file %s: %w", clean, err)
	}
	return nil
}

// Sweep deletes staged files last modified before now-olderThan and returns
// how many were removed.
func (fs *FileSystemStore) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read staging directory: %w", err)
	}

	cutoff := fs.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fs.basePath, entry.Name())); err != nil && !os.IsNotExist(err) {
			slog.Error("failed to sweep staged file", "name", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (fs *FileSystemStore) stagedName(field, originalName string) (string, error) {
	suffix := make([]byte, 5)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	if field == "" {
		field = "file"
	}
	return fmt.Sprintf("%s-%d-%s%s", field, fs.now().UnixMilli(), hex.EncodeToString(suffix), safeExt(originalName)), nil
}

func (fs *FileSystemStore) within(path string) (string, error) {
	clean, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}
	rel, err := filepath.Rel(fs.basePath, clean)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}
	return clean, nil
}

// safeExt keeps a short alphanumeric extension from the client-supplied name.
func safeExt(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
