package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Storage writes uploads under root, one directory per user.
type Storage struct {
	root string
}

func NewStorage(root string) (*Storage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Storage{root: root}, nil
}

// Save stores the upload and returns its path relative to the storage root.
func (s *Storage) Save(userID, name string, r io.Reader) (string, int64, error) {
	clean := unsafeChars.ReplaceAllString(name, "_")
	rel := filepath.Join(userID, fmt.Sprintf("%d_%s", time.Now().UnixMilli(), clean))

	abs := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", 0, err
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(abs)
		return "", 0, err
	}
	return rel, size, nil
}

func (s *Storage) Remove(rel string) error {
	return os.Remove(filepath.Join(s.root, rel))
}

func (s *Storage) Open(rel string) (*os.File, error) {
	return os.Open(filepath.Join(s.root, rel))
}
