// Package tenant resolves authenticated identities to private working directories,
// roles and the set of database files they may use.
package tenant

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Role is a user's access level
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// AllDatabases is the allowed_dbs sentinel granting every database file
const AllDatabases = "all"

// DirSeparator replaces "@" in per-user directory names
const DirSeparator = "_at_"

// DatabaseExt is the extension of tenant database files
const DatabaseExt = ".db"

var (
	ErrNotFound     = errors.New("not found")
	ErrExists       = errors.New("already exists")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidName  = errors.New("invalid database name")
	ErrInvalidEmail = errors.New("invalid email")
	ErrInvalidRole  = errors.New("invalid role")
)

// UserRecord is the persisted access entry for one email
type UserRecord struct {
	Role       Role     `yaml:"role" json:"role"`
	AllowedDBs []string `yaml:"allowed_dbs" json:"allowed_dbs"`
}

// NewUserRecord returns the entry created on first access
func NewUserRecord(role Role) UserRecord {
	return UserRecord{Role: role, AllowedDBs: []string{}}
}

// AllowsAll reports whether allowed_dbs is the ["all"] sentinel
func (u UserRecord) AllowsAll() bool {
	return len(u.AllowedDBs) == 1 && u.AllowedDBs[0] == AllDatabases
}

// Allows reports whether name is granted by allowed_dbs
func (u UserRecord) Allows(name string) bool {
	return u.AllowsAll() || slices.Contains(u.AllowedDBs, name)
}

// Grant adds name to allowed_dbs unless already granted
func (u *UserRecord) Grant(name string) bool {
	if u.Allows(name) {
		return false
	}
	u.AllowedDBs = append(u.AllowedDBs, name)
	return true
}

// Revoke removes name from allowed_dbs
func (u *UserRecord) Revoke(name string) bool {
	i := slices.Index(u.AllowedDBs, name)
	if i < 0 {
		return false
	}
	u.AllowedDBs = slices.Delete(u.AllowedDBs, i, i+1)
	return true
}

// clone returns a deep copy
func (u UserRecord) clone() UserRecord {
	c := UserRecord{Role: u.Role, AllowedDBs: make([]string, len(u.AllowedDBs))}
	copy(c.AllowedDBs, u.AllowedDBs)
	return c
}

// ParseRole parses a role name
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	case RoleGuest:
		return RoleGuest, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// NormalizeEmail trims and lower-cases an email used as a store key
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") || at == len(email)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if strings.ContainsAny(email, "/\\\x00") || strings.Contains(email, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

// DirName returns the per-user directory name for email
func DirName(email string) string {
	return strings.ReplaceAll(email, "@", DirSeparator)
}

// NormalizeDatabaseName appends the .db extension when missing and validates the result
func NormalizeDatabaseName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if !strings.HasSuffix(name, DatabaseExt) {
		name += DatabaseExt
	}
	if name == DatabaseExt || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if len(name) > 255 || strings.ContainsAny(name, "/\\:?#\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// Tenant is a resolved identity with its directory and visible databases
type Tenant struct {
	Email      string   `json:"email"`
	Dir        string   `json:"-"`
	DirName    string   `json:"dir"`
	Role       Role     `json:"role"`
	AllowedDBs []string `json:"allowed_dbs"`
	Databases  []string `json:"databases"`
	Created    bool     `json:"created"`

	adminSeesAll bool
}

// IsAdmin reports whether the tenant has the admin role
func (t *Tenant) IsAdmin() bool {
	return t.Role == RoleAdmin
}

// CanWrite reports whether the tenant may mutate data
func (t *Tenant) CanWrite() bool {
	return t.Role == RoleAdmin || t.Role == RoleUser
}

func (t *Tenant) record() UserRecord {
	return UserRecord{Role: t.Role, AllowedDBs: t.AllowedDBs}
}

// visible reports whether name passes the listing filter
func (t *Tenant) visible(name string) bool {
	if t.IsAdmin() && t.adminSeesAll {
		return true
	}
	return t.record().Allows(name)
}

// CanAccess reports whether name is one of the tenant's listed databases
func (t *Tenant) CanAccess(name string) bool {
	return slices.Contains(t.Databases, name)
}

// CanDelete reports whether the tenant may delete or rename name
func (t *Tenant) CanDelete(name string) bool {
	if !t.CanWrite() || !t.CanAccess(name) {
		return false
	}
	return t.IsAdmin() || t.record().Allows(name)
}

// Path returns the absolute path of a database file in the tenant directory
func (t *Tenant) Path(name string) string {
	return filepath.Join(t.Dir, name)
}
