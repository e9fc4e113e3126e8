package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes pictures into a directory served under /static/profile_pics/
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create picture dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir is the directory pictures are written to
func (s *LocalStore) Dir() string {
	return s.dir
}

// SavePicture processes the upload and returns the stored file name
func (s *LocalStore) SavePicture(_ context.Context, filename string, data []byte) (string, error) {
	pic, err := ProcessPicture(filename, data)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(s.dir, pic.Name), pic.Data, 0o644); err != nil {
		return "", fmt.Errorf("write picture: %w", err)
	}
	return pic.Name, nil
}

// DeletePicture removes a file previously returned by SavePicture
func (s *LocalStore) DeletePicture(_ context.Context, name string) error {
	if name == "" || name != filepath.Base(name) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove picture: %w", err)
	}
	return nil
}
