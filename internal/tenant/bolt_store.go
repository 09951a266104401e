package tenant

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketUsers = []byte("users")

// BoltRoleStore keeps user records as JSON values in a bbolt bucket.
// The database handle is shared and owned by the caller.
type BoltRoleStore struct {
	db *bolt.DB
}

// NewBoltRoleStore creates the users bucket in db if needed
func NewBoltRoleStore(db *bolt.DB) (*BoltRoleStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketUsers); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketUsers, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltRoleStore{db: db}, nil
}

func decodeRecord(data []byte) (UserRecord, error) {
	var rec UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return UserRecord{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	if rec.AllowedDBs == nil {
		rec.AllowedDBs = []string{}
	}
	return rec, nil
}

func putRecord(b *bolt.Bucket, email string, rec UserRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := b.Put([]byte(email), data); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// findKey returns the key holding email and its value, or nil when absent
func findKey(b *bolt.Bucket, email string) ([]byte, []byte) {
	if data := b.Get([]byte(email)); data != nil {
		return []byte(email), data
	}
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if sameEmail(string(k), email) {
			return k, v
		}
	}
	return nil, nil
}

// EnsureUser returns the record for email, creating it with def when absent
func (s *BoltRoleStore) EnsureUser(ctx context.Context, email string, def UserRecord) (UserRecord, bool, error) {
	// Existing users never take the write lock
	rec, found, err := s.GetUser(ctx, email)
	if err != nil {
		return UserRecord{}, false, err
	}
	if found {
		return rec, false, nil
	}

	created := false
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if _, data := findKey(b, email); data != nil {
			var err error
			rec, err = decodeRecord(data)
			return err
		}
		rec = def.clone()
		created = true
		return putRecord(b, email, rec)
	})
	if err != nil {
		return UserRecord{}, false, err
	}
	return rec, created, nil
}

// GetUser returns the record for email
func (s *BoltRoleStore) GetUser(ctx context.Context, email string) (UserRecord, bool, error) {
	var (
		rec   UserRecord
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		_, data := findKey(tx.Bucket(bucketUsers), email)
		if data == nil {
			return nil
		}
		var err error
		rec, err = decodeRecord(data)
		found = err == nil
		return err
	})
	return rec, found, err
}

// UpdateUser applies fn to the record for email and persists it
func (s *BoltRoleStore) UpdateUser(ctx context.Context, email string, fn func(*UserRecord) error) (UserRecord, error) {
	var rec UserRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		key, data := findKey(b, email)
		if data == nil {
			return fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		// key points into the mmap and Put may remap it
		key = append([]byte(nil), key...)
		var err error
		rec, err = decodeRecord(data)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		if rec.AllowedDBs == nil {
			rec.AllowedDBs = []string{}
		}
		return putRecord(b, string(key), rec)
	})
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// ListUsers returns all records
func (s *BoltRoleStore) ListUsers(ctx context.Context) (map[string]UserRecord, error) {
	result := make(map[string]UserRecord)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			result[string(k)] = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close is a no-op; the shared database is closed by its owner
func (s *BoltRoleStore) Close() error {
	return nil
}
