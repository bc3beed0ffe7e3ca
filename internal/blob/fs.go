package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps blobs as flat files under a single directory. It is the
// default backend so the server runs without external services.
type FSStore struct {
	dir string
}

var _ Store = (*FSStore)(nil)

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(id string) (string, error) {
	// Storage ids are server-assigned UUIDs; reject anything that could
	// escape the directory.
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid blob id %q", id)
	}
	return filepath.Join(s.dir, id), nil
}

func (s *FSStore) Put(ctx context.Context, id string, data []byte, contentType string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := os.WriteFile(p+".type", []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("write blob type: %w", err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, id string) ([]byte, string, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("read blob: %w", err)
	}
	ct, err := os.ReadFile(p + ".type")
	if err != nil {
		ct = []byte("application/octet-stream")
	}
	return data, string(ct), nil
}

func (s *FSStore) Delete(ctx context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	_ = os.Remove(p + ".type")
	return nil
}
