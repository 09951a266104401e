package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// Options configures a Resolver
type Options struct {
	// DataDir holds one directory per user
	DataDir string

	// AdminSeesAll lists every database file for admins regardless of allowed_dbs
	AdminSeesAll bool

	// Admins are created with the admin role on first access
	Admins []string
}

// RemoveHook is called before a database file is deleted or renamed away
type RemoveHook func(email, name, path string)

// Resolver maps authenticated emails to tenants and manages their database files
type Resolver struct {
	fs     afero.Fs
	store  RoleStore
	opts   Options
	locks  *keyedMutex
	logger *slog.Logger

	onRemove []RemoveHook
}

// NewResolver creates a new resolver
func NewResolver(fs afero.Fs, store RoleStore, opts Options, logger *slog.Logger) *Resolver {
	return &Resolver{
		fs:     fs,
		store:  store,
		opts:   opts,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// OnRemove registers a hook run before delete and rename
func (r *Resolver) OnRemove(hook RemoveHook) {
	r.onRemove = append(r.onRemove, hook)
}

// Store returns the underlying role store
func (r *Resolver) Store() RoleStore {
	return r.store
}

func (r *Resolver) defaultRecord(email string) UserRecord {
	for _, a := range r.opts.Admins {
		if strings.EqualFold(strings.TrimSpace(a), email) {
			return UserRecord{Role: RoleAdmin, AllowedDBs: []string{AllDatabases}}
		}
	}
	return NewUserRecord(RoleUser)
}

// Resolve returns the tenant for email. An unknown email gets a default
// record which is persisted before Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, email string) (*Tenant, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(email)
	defer unlock()

	return r.resolveLocked(ctx, email)
}

func (r *Resolver) resolveLocked(ctx context.Context, email string) (*Tenant, error) {
	dirName := DirName(email)
	dir := filepath.Join(r.opts.DataDir, dirName)
	if err := r.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}

	rec, created, err := r.store.EnsureUser(ctx, email, r.defaultRecord(email))
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", email, err)
	}
	if created {
		r.logger.Info("user record created", "email", email, "role", rec.Role)
	}

	t := &Tenant{
		Email:        email,
		Dir:          dir,
		DirName:      dirName,
		Role:         rec.Role,
		AllowedDBs:   rec.AllowedDBs,
		Created:      created,
		adminSeesAll: r.opts.AdminSeesAll,
	}

	files, err := r.databaseFiles(dir)
	if err != nil {
		return nil, err
	}
	t.Databases = make([]string, 0, len(files))
	for _, name := range files {
		if t.visible(name) {
			t.Databases = append(t.Databases, name)
		}
	}

	return t, nil
}

// databaseFiles lists *.db files in dir, sorted by name
func (r *Resolver) databaseFiles(dir string) ([]string, error) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read user directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), DatabaseExt) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

func (r *Resolver) exists(path string) (bool, error) {
	ok, err := afero.Exists(r.fs, path)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", filepath.Base(path), err)
	}
	return ok, nil
}

// CreateDatabase creates an empty database file and returns its normalized name.
// Non-admin creators are granted access to the new file.
func (r *Resolver) CreateDatabase(ctx context.Context, email, name string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	name, err = NormalizeDatabaseName(name)
	if err != nil {
		return "", err
	}

	unlock := r.locks.Lock(email)
	defer unlock()

	t, err := r.resolveLocked(ctx, email)
	if err != nil {
		return "", err
	}
	if !t.CanWrite() {
		return "", fmt.Errorf("create %s: %w", name, ErrForbidden)
	}

	path := t.Path(name)
	found, err := r.exists(path)
	if err != nil {
		return "", err
	}
	if found {
		return "", fmt.Errorf("database %s: %w", name, ErrExists)
	}

	f, err := r.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("database %s: %w", name, ErrExists)
		}
		return "", fmt.Errorf("failed to create database file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to create database file: %w", err)
	}

	if !t.IsAdmin() {
		_, err := r.store.UpdateUser(ctx, email, func(u *UserRecord) error {
			u.Grant(name)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to grant %s: %w", name, err)
		}
	}

	r.logger.Info("database created", "email", email, "database", name)
	return name, nil
}

// DeleteDatabase removes a database file and revokes it from allowed_dbs
func (r *Resolver) DeleteDatabase(ctx context.Context, email, name string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	name, err = NormalizeDatabaseName(name)
	if err != nil {
		return err
	}

	unlock := r.locks.Lock(email)
	defer unlock()

	t, err := r.resolveLocked(ctx, email)
	if err != nil {
		return err
	}

	path := t.Path(name)
	found, err := r.exists(path)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("database %s: %w", name, ErrNotFound)
	}
	if !t.CanDelete(name) {
		return fmt.Errorf("delete %s: %w", name, ErrForbidden)
	}

	for _, hook := range r.onRemove {
		hook(email, name, path)
	}
	if err := r.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete database file: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		r.fs.Remove(path + suffix)
	}

	if slices.Contains(t.AllowedDBs, name) {
		_, err := r.store.UpdateUser(ctx, email, func(u *UserRecord) error {
			u.Revoke(name)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to revoke %s: %w", name, err)
		}
	}

	r.logger.Info("database deleted", "email", email, "database", name)
	return nil
}

// RenameDatabase renames a database file and carries its grant to the new name
func (r *Resolver) RenameDatabase(ctx context.Context, email, oldName, newName string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	oldName, err = NormalizeDatabaseName(oldName)
	if err != nil {
		return "", err
	}
	newName, err = NormalizeDatabaseName(newName)
	if err != nil {
		return "", err
	}
	if oldName == newName {
		return newName, nil
	}

	unlock := r.locks.Lock(email)
	defer unlock()

	t, err := r.resolveLocked(ctx, email)
	if err != nil {
		return "", err
	}

	oldPath, newPath := t.Path(oldName), t.Path(newName)
	found, err := r.exists(oldPath)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("database %s: %w", oldName, ErrNotFound)
	}
	if !t.CanDelete(oldName) {
		return "", fmt.Errorf("rename %s: %w", oldName, ErrForbidden)
	}
	found, err = r.exists(newPath)
	if err != nil {
		return "", err
	}
	if found {
		return "", fmt.Errorf("database %s: %w", newName, ErrExists)
	}

	// Hooks run first so pooled handles on the old path are closed
	for _, hook := range r.onRemove {
		hook(email, oldName, oldPath)
	}
	if err := r.fs.Rename(oldPath, newPath); err != nil {
		return "", fmt.Errorf("failed to rename database file: %w", err)
	}

	if slices.Contains(t.AllowedDBs, oldName) {
		_, err := r.store.UpdateUser(ctx, email, func(u *UserRecord) error {
			u.Revoke(oldName)
			u.Grant(newName)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to move grant to %s: %w", newName, err)
		}
	}

	r.logger.Info("database renamed", "email", email, "from", oldName, "to", newName)
	return newName, nil
}

// SelectDatabase checks that name is visible to email and returns its path
func (r *Resolver) SelectDatabase(ctx context.Context, email, name string) (string, error) {
	name, err := NormalizeDatabaseName(name)
	if err != nil {
		return "", err
	}
	t, err := r.Resolve(ctx, email)
	if err != nil {
		return "", err
	}
	if !t.CanAccess(name) {
		found, err := r.exists(t.Path(name))
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("database %s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("select %s: %w", name, ErrForbidden)
	}
	return t.Path(name), nil
}

// SetUser replaces role and allowed_dbs for email, creating the record if needed
func (r *Resolver) SetUser(ctx context.Context, email string, rec UserRecord) (UserRecord, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return UserRecord{}, err
	}
	role, err := ParseRole(string(rec.Role))
	if err != nil {
		return UserRecord{}, err
	}

	unlock := r.locks.Lock(email)
	defer unlock()

	if _, _, err := r.store.EnsureUser(ctx, email, r.defaultRecord(email)); err != nil {
		return UserRecord{}, err
	}
	return r.store.UpdateUser(ctx, email, func(u *UserRecord) error {
		u.Role = role
		if rec.AllowedDBs != nil {
			u.AllowedDBs = slices.Clone(rec.AllowedDBs)
		}
		return nil
	})
}

// SetRole changes the role of email, creating the record if needed
func (r *Resolver) SetRole(ctx context.Context, email string, role Role) (UserRecord, error) {
	return r.SetUser(ctx, email, UserRecord{Role: role})
}

// Grant adds names to allowed_dbs of email. Granting "all" replaces the list.
func (r *Resolver) Grant(ctx context.Context, email string, names ...string) (UserRecord, error) {
	return r.updateGrants(ctx, email, names, func(u *UserRecord, name string) {
		if name == AllDatabases {
			u.AllowedDBs = []string{AllDatabases}
			return
		}
		u.Grant(name)
	})
}

// Revoke removes names from allowed_dbs of email
func (r *Resolver) Revoke(ctx context.Context, email string, names ...string) (UserRecord, error) {
	return r.updateGrants(ctx, email, names, func(u *UserRecord, name string) {
		u.Revoke(name)
	})
}

func (r *Resolver) updateGrants(ctx context.Context, email string, names []string, apply func(*UserRecord, string)) (UserRecord, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return UserRecord{}, err
	}
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		if n != AllDatabases {
			if n, err = NormalizeDatabaseName(n); err != nil {
				return UserRecord{}, err
			}
		}
		normalized = append(normalized, n)
	}

	unlock := r.locks.Lock(email)
	defer unlock()

	if _, _, err := r.store.EnsureUser(ctx, email, r.defaultRecord(email)); err != nil {
		return UserRecord{}, err
	}
	return r.store.UpdateUser(ctx, email, func(u *UserRecord) error {
		for _, n := range normalized {
			apply(u, n)
		}
		return nil
	})
}
