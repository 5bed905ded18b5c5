// Package filestore stores uploaded clinical-note documents on disk. Uploads
// are validated against an extension allow-list and a size ceiling, then
// written under a collision-proof name: a random hex token prefixed to the
// original filename. Writes go through a temp file and rename, so a stored
// file is either fully present or absent.
package filestore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("file not found")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrInvalidExtension = errors.New("file extension is not allowed")
	ErrMissingFileName  = errors.New("file name is required")
)

// allowedExtensions is the closed set of accepted clinical document formats.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// AllowedExtensions returns the accepted extensions, sorted, for error payloads.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// StoredFile describes a persisted clinical-note document.
type StoredFile struct {
	Name         string    `json:"filename"`
	OriginalName string    `json:"original_filename"`
	Size         int64     `json:"file_size_bytes"`
	StoredAt     time.Time `json:"stored_at"`
}

// Store is a disk-backed document store rooted at a single directory.
type Store struct {
	dir      string
	maxBytes int64
}

// New creates the storage directory if needed and returns a Store enforcing
// the given size ceiling.
func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes returns the configured size ceiling.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save validates and persists an uploaded document. The stored name is
// "<token>_<original base name>" where token is 32 hex chars, so concurrent
// uploads of identically named files never collide.
func (s *Store) Save(_ context.Context, originalName string, content io.Reader) (*StoredFile, error) {
	base := filepath.Base(strings.TrimSpace(originalName))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, ErrMissingFileName
	}

	ext := strings.ToLower(filepath.Ext(base))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExtension, ext)
	}

	// Read one byte past the ceiling to detect oversize payloads.
	data, err := io.ReadAll(io.LimitReader(content, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	name := randomToken() + "_" + base
	if err := s.writeAtomic(name, data); err != nil {
		return nil, err
	}

	return &StoredFile{
		Name:         name,
		OriginalName: base,
		Size:         int64(len(data)),
		StoredAt:     time.Now().UTC(),
	}, nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place. The temp file is removed on any failure.
func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Open returns a reader over a stored document and its metadata.
func (s *Store) Open(_ context.Context, name string) (io.ReadCloser, *StoredFile, error) {
	base := filepath.Base(name)
	if base != name || base == "" || base == "." || base == ".." {
		return nil, nil, ErrNotFound
	}

	path := filepath.Join(s.dir, base)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("stat %s: %w", base, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", base, err)
	}

	meta := &StoredFile{
		Name:         base,
		OriginalName: originalName(base),
		Size:         info.Size(),
		StoredAt:     info.ModTime().UTC(),
	}
	return f, meta, nil
}

// List returns stored documents sorted by name, newest metadata included,
// paginated by limit/offset, plus the total count.
func (s *Store) List(_ context.Context, limit, offset int) ([]*StoredFile, int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read upload directory: %w", err)
	}

	var files []*StoredFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, &StoredFile{
			Name:         entry.Name(),
			OriginalName: originalName(entry.Name()),
			Size:         info.Size(),
			StoredAt:     info.ModTime().UTC(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	total := len(files)
	if limit <= 0 {
		limit = 20
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return files[offset:end], total, nil
}

// originalName strips the random token prefix from a stored name.
func originalName(stored string) string {
	if i := strings.Index(stored, "_"); i > 0 {
		return stored[i+1:]
	}
	return stored
}

// randomToken returns 32 hex chars from crypto/rand.
func randomToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("filestore: rand.Read: %v", err))
	}
	return hex.EncodeToString(b[:])
}
