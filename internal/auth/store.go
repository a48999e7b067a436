package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Store persists the permission set.
type Store interface {
	Load() (PermissionSet, error)
	Save(PermissionSet) error
}

// FileStore keeps permissions in a JSON object keyed by decimal user ID:
//
//	{"123456": ["ai", "wrt"]}
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file. A missing file is an empty set; unparsable content is an error.
func (s *FileStore) Load() (PermissionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return PermissionSet{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// Save writes the file atomically.
func (s *FileStore) Save(set PermissionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(set)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func decode(data []byte) (PermissionSet, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid permissions data: %w", err)
	}

	set := make(PermissionSet, len(raw))
	for key, features := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q in permissions data", key)
		}
		for _, f := range features {
			if f != "" && !set.Has(id, f) {
				set.add(id, f)
			}
		}
	}
	return set, nil
}

func encode(set PermissionSet) ([]byte, error) {
	raw := make(map[string][]string, len(set))
	for id, features := range set {
		if len(features) > 0 {
			raw[strconv.FormatInt(id, 10)] = features
		}
	}
	return json.MarshalIndent(raw, "", "  ")
}
