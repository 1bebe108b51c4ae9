// Package fs provides the local-filesystem storage backend.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/artstore/artstore/pkg/element/store"
)

// tmpSuffix marks in-flight writes. Readers and walks never see these.
const tmpSuffix = ".tmp"

// Config holds configuration for the filesystem backend.
type Config struct {
	// BasePath is the root directory for file storage.
	BasePath string

	// CreateDir creates the base directory if it doesn't exist.
	// Default: true
	CreateDir bool

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode
}

// DefaultConfig returns the default configuration for basePath.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:  basePath,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0644,
	}
}

// Store is a filesystem-backed implementation of store.Backend. Data files
// are written to a temporary sibling, fsynced, and renamed into place so a
// crash never leaves a partial object visible under its final name.
type Store struct {
	mu       sync.RWMutex
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
	closed   bool
}

// New creates a filesystem backend rooted at cfg.BasePath.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("base path is not a directory")
	}

	return &Store{
		basePath: cfg.BasePath,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
	}, nil
}

// NewWithPath creates a filesystem backend with default configuration.
func NewWithPath(basePath string) (*Store, error) {
	return New(DefaultConfig(basePath))
}

// resolve maps a relative slash path to an absolute path under the base
// directory, rejecting anything that would escape it.
func (s *Store) resolve(relPath string) (string, error) {
	if relPath == "" || strings.HasPrefix(relPath, "/") {
		return "", store.ErrInvalidPath
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", store.ErrInvalidPath
	}
	if filepath.IsAbs(clean) {
		return "", store.ErrInvalidPath
	}
	return filepath.Join(s.basePath, clean), nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrStoreClosed
	}
	return nil
}

// atomicWrite fills a temporary sibling of path, fsyncs it, and renames it
// into place. The temporary file is removed on any failure.
func (s *Store) atomicWrite(path string, fill func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return err
	}

	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.fileMode)
	if err != nil {
		return err
	}

	if err := fill(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// WriteData streams r to relPath, hashing as it copies.
func (s *Store) WriteData(ctx context.Context, relPath string, r io.Reader) (store.WriteResult, error) {
	if err := s.checkOpen(); err != nil {
		return store.WriteResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.WriteResult{}, err
	}

	path, err := s.resolve(relPath)
	if err != nil {
		return store.WriteResult{}, err
	}

	hash := sha256.New()
	var written int64
	err = s.atomicWrite(path, func(f *os.File) error {
		n, copyErr := io.Copy(io.MultiWriter(f, hash), r)
		written = n
		return copyErr
	})
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("write data %s: %w", relPath, err)
	}

	return store.WriteResult{
		Bytes:    written,
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// WriteAttr atomically stores an attribute document at relPath.
func (s *Store) WriteAttr(ctx context.Context, relPath string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	err = s.atomicWrite(path, func(f *os.File) error {
		_, writeErr := f.Write(data)
		return writeErr
	})
	if err != nil {
		return fmt.Errorf("write attr %s: %w", relPath, err)
	}
	return nil
}

// ReadAttr returns the attribute document at relPath.
func (s *Store) ReadAttr(ctx context.Context, relPath string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	path, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

// rangeReader limits reads to the requested window and closes the
// underlying file.
type rangeReader struct {
	io.Reader
	f *os.File
}

func (r *rangeReader) Close() error {
	return r.f.Close()
}

// OpenRange opens relPath for reading at offset. length < 0 reads to EOF.
func (s *Store) OpenRange(ctx context.Context, relPath string, offset, length int64) (io.ReadCloser, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	path, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrObjectNotFound
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if offset < 0 || offset > info.Size() {
		f.Close()
		return nil, fmt.Errorf("offset %d out of range for %d-byte object", offset, info.Size())
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}

	remaining := info.Size() - offset
	if length < 0 || length > remaining {
		length = remaining
	}
	return &rangeReader{Reader: io.LimitReader(f, length), f: f}, nil
}

// Stat returns size and modification time of the object at relPath.
func (s *Store) Stat(ctx context.Context, relPath string) (store.ObjectInfo, error) {
	if err := s.checkOpen(); err != nil {
		return store.ObjectInfo{}, err
	}

	path, err := s.resolve(relPath)
	if err != nil {
		return store.ObjectInfo{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store.ObjectInfo{}, store.ErrObjectNotFound
		}
		return store.ObjectInfo{}, err
	}
	return store.ObjectInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes the object at relPath. Missing objects are ignored so
// rollback and recovery can retry deletes safely.
func (s *Store) Delete(ctx context.Context, relPath string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	path, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	s.cleanEmptyDirs(filepath.Dir(path))
	return nil
}

// cleanEmptyDirs removes empty directories up to the base path.
func (s *Store) cleanEmptyDirs(dir string) {
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			// Not empty or already gone, stop.
			break
		}
		dir = filepath.Dir(dir)
	}
}

// Walk visits every stored object under the base path, skipping in-flight
// temporary files.
func (s *Store) Walk(ctx context.Context, fn func(relPath string, info store.ObjectInfo) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return filepath.WalkDir(s.basePath, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, tmpSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), store.ObjectInfo{Size: info.Size(), ModTime: info.ModTime()})
	})
}

// Usage reports total and free bytes of the volume holding the base path.
func (s *Store) Usage(ctx context.Context) (store.DiskUsage, error) {
	if err := s.checkOpen(); err != nil {
		return store.DiskUsage{}, err
	}

	var st unix.Statfs_t
	if err := unix.Statfs(s.basePath, &st); err != nil {
		return store.DiskUsage{}, fmt.Errorf("statfs %s: %w", s.basePath, err)
	}
	bsize := int64(st.Bsize)
	return store.DiskUsage{
		TotalBytes: int64(st.Blocks) * bsize,
		FreeBytes:  int64(st.Bavail) * bsize,
	}, nil
}

// HealthCheck verifies the base path is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := os.Stat(s.basePath); err != nil {
		return err
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// BasePath returns the root directory of the store.
func (s *Store) BasePath() string {
	return s.basePath
}

// Ensure Store implements store.Backend.
var _ store.Backend = (*Store)(nil)
