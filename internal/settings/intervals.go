// Package settings persists per-table maintenance interval settings.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	MinIntervalDays = 1
	MaxIntervalDays = 365
)

var (
	// ErrInvalidInterval is returned for intervals outside 1..365 days
	ErrInvalidInterval = errors.New("interval must be between 1 and 365 days")

	// ErrMissingKey is returned for a blank table name or equipment type
	ErrMissingKey = errors.New("table and equipment type are required")
)

// Intervals maps table -> equipment type -> days
type Intervals map[string]map[string]int

// Store keeps interval settings in a YAML file. Writers are serialized
// and the file is replaced atomically.
type Store struct {
	fs          afero.Fs
	path        string
	defaultDays int

	mu sync.Mutex
}

// NewStore creates a store backed by path on fs
func NewStore(fs afero.Fs, path string, defaultDays int) *Store {
	if defaultDays <= 0 {
		defaultDays = 90
	}
	return &Store{fs: fs, path: path, defaultDays: defaultDays}
}

// DefaultDays returns the interval used when a type has no setting
func (s *Store) DefaultDays() int {
	return s.defaultDays
}

func (s *Store) load() (Intervals, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Intervals{}, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	all := Intervals{}
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if all == nil {
		all = Intervals{}
	}
	return all, nil
}

func (s *Store) save(all Intervals) error {
	data, err := yaml.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := s.fs.Rename(tmp.Name(), s.path); err != nil {
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// All returns every table's settings
func (s *Store) All() (Intervals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Table returns a copy of the settings for table
func (s *Store) Table(table string) (map[string]int, error) {
	table = strings.TrimSpace(table)

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make(map[string]int, len(all[table]))
	for typ, days := range all[table] {
		result[typ] = days
	}
	return result, nil
}

// Get returns the interval for an equipment type, or the default
func (s *Store) Get(table, equipmentType string) (int, error) {
	t, err := s.Table(table)
	if err != nil {
		return 0, err
	}
	if days, ok := t[strings.TrimSpace(equipmentType)]; ok {
		return days, nil
	}
	return s.defaultDays, nil
}

// Set merges values into the settings for table and persists them.
// Nothing is written if any value is out of range.
func (s *Store) Set(table string, values map[string]int) (map[string]int, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("table: %w", ErrMissingKey)
	}
	clean := make(map[string]int, len(values))
	for typ, days := range values {
		typ = strings.TrimSpace(typ)
		if typ == "" {
			return nil, fmt.Errorf("equipment type: %w", ErrMissingKey)
		}
		if days < MinIntervalDays || days > MaxIntervalDays {
			return nil, fmt.Errorf("%s: %w", typ, ErrInvalidInterval)
		}
		clean[typ] = days
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	if all[table] == nil {
		all[table] = make(map[string]int)
	}
	for typ, days := range clean {
		all[table][typ] = days
	}
	if err := s.save(all); err != nil {
		return nil, err
	}

	result := make(map[string]int, len(all[table]))
	for typ, days := range all[table] {
		result[typ] = days
	}
	return result, nil
}

// Resolve returns the effective interval for each type, filling defaults
func (s *Store) Resolve(table string, types []string) (map[string]int, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int, len(types))
	for _, typ := range types {
		typ = strings.TrimSpace(typ)
		if days, ok := t[typ]; ok {
			result[typ] = days
		} else {
			result[typ] = s.defaultDays
		}
	}
	return result, nil
}
