package tenant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// countingFs counts atomic replacements of one file
type countingFs struct {
	afero.Fs
	target string

	mu sync.Mutex
	n  int
}

func (c *countingFs) Rename(oldname, newname string) error {
	if err := c.Fs.Rename(oldname, newname); err != nil {
		return err
	}
	if newname == c.target {
		c.mu.Lock()
		c.n++
		c.mu.Unlock()
	}
	return nil
}

// countedStore is a YAML role store that reports how often its file was written
type countedStore struct {
	*YAMLRoleStore
	fs *countingFs
}

func (s *countedStore) writes() int {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	return s.fs.n
}

func newCountedStore(fs afero.Fs, path string) *countedStore {
	cfs := &countingFs{Fs: fs, target: path}
	return &countedStore{YAMLRoleStore: NewYAMLRoleStore(cfs, path), fs: cfs}
}

func TestYAMLRoleStoreEnsureUser(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newCountedStore(fs, "/etc/equiptrack/roles.yaml")
	ctx := context.Background()

	rec, created, err := store.EnsureUser(ctx, "alice@example.com", NewUserRecord(RoleUser))
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if !created {
		t.Error("EnsureUser() created = false, want true")
	}
	if rec.Role != RoleUser || len(rec.AllowedDBs) != 0 {
		t.Errorf("EnsureUser() = %+v, want role user with no databases", rec)
	}
	if store.writes() != 1 {
		t.Errorf("writes = %d, want 1", store.writes())
	}

	// Second access must not write again
	_, created, err = store.EnsureUser(ctx, "alice@example.com", NewUserRecord(RoleUser))
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if created {
		t.Error("second EnsureUser() created = true, want false")
	}
	if store.writes() != 1 {
		t.Errorf("writes = %d after second access, want 1", store.writes())
	}

	data, err := afero.ReadFile(fs, "/etc/equiptrack/roles.yaml")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc struct {
		Users map[string]struct {
			Role       string   `yaml:"role"`
			AllowedDBs []string `yaml:"allowed_dbs"`
		} `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("roles file is not valid YAML: %v", err)
	}
	if len(doc.Users) != 1 || doc.Users["alice@example.com"].Role != "user" {
		t.Errorf("roles file = %s", data)
	}
	if !strings.Contains(string(data), "allowed_dbs: []") {
		t.Errorf("roles file should persist an empty allowed_dbs list, got:\n%s", data)
	}
}

func TestYAMLRoleStoreConcurrentFirstAccess(t *testing.T) {
	store := newCountedStore(afero.NewMemMapFs(), "/roles.yaml")
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
	if store.writes() != 1 {
		t.Errorf("writes = %d, want exactly 1", store.writes())
	}
}

func TestYAMLRoleStoreExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `settings:
  theme: dark
users:
  boss@example.com:
    role: admin
    allowed_dbs:
      - all
  ops@example.com:
    role: user
    allowed_dbs:
      - plant.db
`
	if err := afero.WriteFile(fs, "/roles.yaml", []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	store := NewYAMLRoleStore(fs, "/roles.yaml")
	ctx := context.Background()

	rec, ok, err := store.GetUser(ctx, "boss@example.com")
	if err != nil || !ok {
		t.Fatalf("GetUser() = %v, %v", ok, err)
	}
	if rec.Role != RoleAdmin || !rec.AllowsAll() {
		t.Errorf("GetUser() = %+v, want admin with [all]", rec)
	}

	_, err = store.UpdateUser(ctx, "ops@example.com", func(u *UserRecord) error {
		u.Grant("yard.db")
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	data, _ := afero.ReadFile(fs, "/roles.yaml")
	if !strings.Contains(string(data), "theme: dark") {
		t.Errorf("unknown top-level keys were dropped:\n%s", data)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if got := users["ops@example.com"].AllowedDBs; len(got) != 2 || got[1] != "yard.db" {
		t.Errorf("ops allowed_dbs = %v, want [plant.db yard.db]", got)
	}
}

func TestYAMLRoleStoreMissingFile(t *testing.T) {
	store := newCountedStore(afero.NewMemMapFs(), "/missing/roles.yaml")
	ctx := context.Background()

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("ListUsers() = %v, want empty", users)
	}

	_, err = store.UpdateUser(ctx, "nobody@example.com", func(u *UserRecord) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateUser() error = %v, want ErrNotFound", err)
	}
	if store.writes() != 0 {
		t.Errorf("writes = %d, want 0", store.writes())
	}
}

func TestYAMLRoleStoreUpdateErrorNotPersisted(t *testing.T) {
	store := NewYAMLRoleStore(afero.NewMemMapFs(), "/roles.yaml")
	ctx := context.Background()

	if _, _, err := store.EnsureUser(ctx, "a@example.com", NewUserRecord(RoleUser)); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	_, err := store.UpdateUser(ctx, "a@example.com", func(u *UserRecord) error {
		u.Role = RoleAdmin
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("UpdateUser() error = %v, want boom", err)
	}
	rec, _, _ := store.GetUser(ctx, "a@example.com")
	if rec.Role != RoleUser {
		t.Errorf("role = %v after failed update, want user", rec.Role)
	}
}

func TestYAMLRoleStoreMixedCaseKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `users:
  Alice@Example.com:
    role: admin
    allowed_dbs:
      - all
`
	if err := afero.WriteFile(fs, "/roles.yaml", []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	store := newCountedStore(fs, "/roles.yaml")
	ctx := context.Background()

	rec, created, err := store.EnsureUser(ctx, "alice@example.com", NewUserRecord(RoleUser))
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if created || rec.Role != RoleAdmin || !rec.AllowsAll() {
		t.Errorf("EnsureUser() = %+v, %v, want existing admin", rec, created)
	}
	if store.writes() != 0 {
		t.Errorf("writes = %d, want 0", store.writes())
	}

	if _, ok, _ := store.GetUser(ctx, "alice@example.com"); !ok {
		t.Error("GetUser() did not find the mixed-case key")
	}

	_, err = store.UpdateUser(ctx, "alice@example.com", func(u *UserRecord) error {
		u.Role = RoleUser
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("ListUsers() = %v, want a single entry", users)
	}
	if users["Alice@Example.com"].Role != RoleUser {
		t.Errorf("ListUsers() = %v, want the original key updated", users)
	}
}

func TestLookupKey(t *testing.T) {
	users := map[string]UserRecord{
		"ops@example.com":     {Role: RoleUser},
		" Boss@Example.com ":  {Role: RoleAdmin},
		"boss@example.com.au": {Role: RoleGuest},
	}

	tests := []struct {
		email   string
		wantKey string
		wantOK  bool
	}{
		{"ops@example.com", "ops@example.com", true},
		{"boss@example.com", " Boss@Example.com ", true},
		{"boss@example.com.au", "boss@example.com.au", true},
		{"nobody@example.com", "", false},
	}

	for _, tt := range tests {
		key, ok := lookupKey(users, tt.email)
		if key != tt.wantKey || ok != tt.wantOK {
			t.Errorf("lookupKey(%q) = %q, %v, want %q, %v", tt.email, key, ok, tt.wantKey, tt.wantOK)
		}
	}
}
