package tenant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// rolesDocument is the on-disk layout of roles.yaml.
// Unknown top-level keys are carried through writes.
type rolesDocument struct {
	Users map[string]UserRecord `yaml:"users"`
	Extra map[string]any        `yaml:",inline"`
}

// YAMLRoleStore keeps user records in a single YAML file.
// Every operation re-reads the file so manual edits are picked up;
// writers are serialized and replace the file atomically.
type YAMLRoleStore struct {
	fs   afero.Fs
	path string

	mu sync.Mutex
}

// NewYAMLRoleStore creates a store backed by path on fs
func NewYAMLRoleStore(fs afero.Fs, path string) *YAMLRoleStore {
	return &YAMLRoleStore{fs: fs, path: path}
}

func (s *YAMLRoleStore) load() (*rolesDocument, error) {
	doc := &rolesDocument{}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			doc.Users = make(map[string]UserRecord)
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}

	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}
	if doc.Users == nil {
		doc.Users = make(map[string]UserRecord)
	}
	for email, rec := range doc.Users {
		if rec.AllowedDBs == nil {
			rec.AllowedDBs = []string{}
			doc.Users[email] = rec
		}
	}
	return doc, nil
}

func (s *YAMLRoleStore) save(doc *rolesDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create roles directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".roles-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp roles file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write roles file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write roles file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace roles file: %w", err)
	}

	return nil
}

// EnsureUser returns the record for email, creating it with def when absent
func (s *YAMLRoleStore) EnsureUser(ctx context.Context, email string, def UserRecord) (UserRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return UserRecord{}, false, err
	}

	if key, ok := lookupKey(doc.Users, email); ok {
		return doc.Users[key].clone(), false, nil
	}

	rec := def.clone()
	doc.Users[email] = rec
	if err := s.save(doc); err != nil {
		return UserRecord{}, false, err
	}
	return rec.clone(), true, nil
}

// GetUser returns the record for email
func (s *YAMLRoleStore) GetUser(ctx context.Context, email string) (UserRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return UserRecord{}, false, err
	}
	key, ok := lookupKey(doc.Users, email)
	if !ok {
		return UserRecord{}, false, nil
	}
	return doc.Users[key].clone(), true, nil
}

// UpdateUser applies fn to the record for email and persists it
func (s *YAMLRoleStore) UpdateUser(ctx context.Context, email string, fn func(*UserRecord) error) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return UserRecord{}, err
	}

	key, ok := lookupKey(doc.Users, email)
	if !ok {
		return UserRecord{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	rec := doc.Users[key].clone()
	if err := fn(&rec); err != nil {
		return UserRecord{}, err
	}
	if rec.AllowedDBs == nil {
		rec.AllowedDBs = []string{}
	}

	doc.Users[key] = rec
	if err := s.save(doc); err != nil {
		return UserRecord{}, err
	}
	return rec.clone(), nil
}

// ListUsers returns all records
func (s *YAMLRoleStore) ListUsers(ctx context.Context) (map[string]UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make(map[string]UserRecord, len(doc.Users))
	for email, rec := range doc.Users {
		result[email] = rec.clone()
	}
	return result, nil
}

// Close is a no-op; the file is not held open between operations
func (s *YAMLRoleStore) Close() error {
	return nil
}
