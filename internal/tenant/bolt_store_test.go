package tenant

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestBolt(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "state.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBoltRoleStore(t *testing.T) {
	store, err := NewBoltRoleStore(openTestBolt(t))
	if err != nil {
		t.Fatalf("NewBoltRoleStore() error = %v", err)
	}
	ctx := context.Background()

	rec, created, err := store.EnsureUser(ctx, "alice@example.com", NewUserRecord(RoleUser))
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if !created || rec.Role != RoleUser || len(rec.AllowedDBs) != 0 {
		t.Errorf("EnsureUser() = %+v, %v", rec, created)
	}

	_, created, _ = store.EnsureUser(ctx, "alice@example.com", UserRecord{Role: RoleAdmin})
	if created {
		t.Error("second EnsureUser() created = true")
	}

	rec, err = store.UpdateUser(ctx, "alice@example.com", func(u *UserRecord) error {
		u.Grant("plant.db")
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if !rec.Allows("plant.db") {
		t.Errorf("UpdateUser() = %+v, want plant.db granted", rec)
	}

	got, ok, err := store.GetUser(ctx, "alice@example.com")
	if err != nil || !ok {
		t.Fatalf("GetUser() = %v, %v", ok, err)
	}
	if got.Role != RoleUser || !got.Allows("plant.db") {
		t.Errorf("GetUser() = %+v", got)
	}

	_, ok, err = store.GetUser(ctx, "nobody@example.com")
	if err != nil || ok {
		t.Errorf("GetUser(unknown) = %v, %v, want false, nil", ok, err)
	}

	_, err = store.UpdateUser(ctx, "nobody@example.com", func(u *UserRecord) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateUser(unknown) error = %v, want ErrNotFound", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 {
		t.Errorf("ListUsers() = %v, want 1 user", users)
	}
}

func TestBoltRoleStoreConcurrentFirstAccess(t *testing.T) {
	store, err := NewBoltRoleStore(openTestBolt(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := store.EnsureUser(ctx, "racer@example.com", NewUserRecord(RoleUser))
			if err != nil {
				t.Errorf("EnsureUser() error = %v", err)
				return
			}
			if c {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
}

func TestBoltRoleStoreMixedCaseKey(t *testing.T) {
	db := openTestBolt(t)
	store, err := NewBoltRoleStore(db)
	if err != nil {
		t.Fatalf("NewBoltRoleStore() error = %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		return putRecord(tx.Bucket(bucketUsers), "Alice@Example.com", UserRecord{Role: RoleAdmin, AllowedDBs: []string{AllDatabases}})
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	rec, created, err := store.EnsureUser(ctx, "alice@example.com", NewUserRecord(RoleUser))
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if created || rec.Role != RoleAdmin {
		t.Errorf("EnsureUser() = %+v, %v, want existing admin", rec, created)
	}

	if _, err := store.UpdateUser(ctx, "alice@example.com", func(u *UserRecord) error {
		u.Role = RoleGuest
		return nil
	}); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 || users["Alice@Example.com"].Role != RoleGuest {
		t.Errorf("ListUsers() = %v, want the original key updated", users)
	}
}
