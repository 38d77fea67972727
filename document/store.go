// Package document handles uploaded files: disk storage under a
// collision-proof name, text extraction per format, and the abstract and
// citation metadata derived at upload time.
package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store saves uploaded files under a single directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates the upload directory if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the upload directory path.
func (s *Store) Dir() string { return s.dir }

// Save writes the upload to disk under an 8-hex-char random prefix plus the
// sanitized original name, and returns the stored name and byte size.
func (s *Store) Save(originalName string, r io.Reader) (string, int64, error) {
	name := uuid.New().String()[:8] + "_" + SanitizeFilename(originalName)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}

	s.logger.Debug("saved upload",
		zap.String("original", originalName),
		zap.String("stored", name),
		zap.Int64("size", size))
	return name, size, nil
}

// Path returns the on-disk path for a stored name, rejecting anything that
// escapes the upload directory.
func (s *Store) Path(storedName string) (string, error) {
	clean := filepath.Base(storedName)
	if clean != storedName || clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid stored name %q", storedName)
	}
	return filepath.Join(s.dir, clean), nil
}

// SanitizeFilename strips path components and replaces anything outside
// [A-Za-z0-9._-] so a client-supplied name is safe as a disk filename.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		out = "file"
	}
	return out
}
