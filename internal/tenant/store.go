package tenant

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// RoleStore persists user records keyed by email. Lookups take a normalized
// email and also match keys that differ only in case or surrounding
// whitespace, so hand-written files keep working; such keys are preserved on
// write.
type RoleStore interface {
	// EnsureUser returns the record for email, inserting def when absent.
	// The store is written only when the record was created.
	EnsureUser(ctx context.Context, email string, def UserRecord) (UserRecord, bool, error)

	// GetUser returns the record for email and whether it exists
	GetUser(ctx context.Context, email string) (UserRecord, bool, error)

	// UpdateUser applies fn to an existing record and persists the result.
	// Returns ErrNotFound when the email has no record.
	UpdateUser(ctx context.Context, email string, fn func(*UserRecord) error) (UserRecord, error)

	// ListUsers returns all records
	ListUsers(ctx context.Context) (map[string]UserRecord, error)

	Close() error
}

// sameEmail reports whether a stored key names email
func sameEmail(key, email string) bool {
	return strings.EqualFold(strings.TrimSpace(key), email)
}

// lookupKey returns the key of users that holds email. An exact key wins;
// otherwise the first matching key in sorted order is used.
func lookupKey(users map[string]UserRecord, email string) (string, bool) {
	if _, ok := users[email]; ok {
		return email, true
	}
	for _, key := range slices.Sorted(maps.Keys(users)) {
		if sameEmail(key, email) {
			return key, true
		}
	}
	return "", false
}
