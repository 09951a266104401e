// Package session keeps per-identity working state: the selected database
// and the active table.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// State is the working state of one identity
type State struct {
	SelectedDB  string    `json:"selected_db"`
	ActiveTable string    `json:"active_table"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists session state in BoltDB
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// NewStore opens (or creates) the state file at path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSessions); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSessions, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Get returns the state for email, or nil when none is stored
func (s *Store) Get(ctx context.Context, email string) (*State, error) {
	var state *State
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(email))
		if data == nil {
			return nil
		}
		state = &State{}
		if err := json.Unmarshal(data, state); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return nil
	})
	return state, err
}

// Save stores state for email, stamping UpdatedAt
func (s *Store) Save(ctx context.Context, email string, state State) (*State, error) {
	state.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSessions).Put([]byte(email), data); err != nil {
			return fmt.Errorf("failed to store session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Delete removes the state for email
func (s *Store) Delete(ctx context.Context, email string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(email))
	})
}

// ClearDatabase resets the selection of email when it points at dbName.
// Reports whether the state changed.
func (s *Store) ClearDatabase(ctx context.Context, email, dbName string) (bool, error) {
	changed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(email))
		if data == nil {
			return nil
		}
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if state.SelectedDB != dbName {
			return nil
		}
		state.SelectedDB = ""
		state.ActiveTable = ""
		state.UpdatedAt = s.now().UTC()
		updated, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		changed = true
		return b.Put([]byte(email), updated)
	})
	return changed, err
}

// Cleanup removes sessions not updated within maxAge
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var state State
			if err := json.Unmarshal(v, &state); err != nil || state.UpdatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Count returns the number of stored sessions
func (s *Store) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSessions).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the state database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying BoltDB handle so other stores can share the file
func (s *Store) DB() *bolt.DB {
	return s.db
}
