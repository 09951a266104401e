package tenant

import (
	"errors"
	"testing"
)

func TestDirName(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "alice_at_example.com"},
		{"bob.smith@plant.example.org", "bob.smith_at_plant.example.org"},
		{"noat", "noat"},
	}

	for _, tt := range tests {
		if got := DirName(tt.email); got != tt.want {
			t.Errorf("DirName(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Alice@Example.com", want: "alice@example.com"},
		{in: "  bob@example.com ", want: "bob@example.com"},
		{in: "", wantErr: true},
		{in: "no-at-sign", wantErr: true},
		{in: "@example.com", wantErr: true},
		{in: "alice@", wantErr: true},
		{in: "a@b@c", wantErr: true},
		{in: "../evil@example.com", wantErr: true},
		{in: "evil/x@example.com", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeEmail(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidEmail) {
				t.Errorf("NormalizeEmail(%q) error = %v, want ErrInvalidEmail", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeEmail(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDatabaseName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "inventory", want: "inventory.db"},
		{in: "inventory.db", want: "inventory.db"},
		{in: " plant 2 ", want: "plant 2.db"},
		{in: "", wantErr: true},
		{in: ".db", wantErr: true},
		{in: ".hidden", wantErr: true},
		{in: "../other.db", wantErr: true},
		{in: "dir/file.db", wantErr: true},
		{in: `dir\file.db`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeDatabaseName(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidName) {
				t.Errorf("NormalizeDatabaseName(%q) error = %v, want ErrInvalidName", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeDatabaseName(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeDatabaseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"admin", "User", " guest "} {
		if _, err := ParseRole(s); err != nil {
			t.Errorf("ParseRole(%q) error = %v", s, err)
		}
	}
	if _, err := ParseRole("owner"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ParseRole(owner) error = %v, want ErrInvalidRole", err)
	}
}

func TestUserRecordGrants(t *testing.T) {
	rec := NewUserRecord(RoleUser)
	if rec.AllowedDBs == nil {
		t.Fatal("NewUserRecord().AllowedDBs is nil, want empty list")
	}
	if rec.Allows("a.db") {
		t.Error("empty record allows a.db")
	}

	if !rec.Grant("a.db") {
		t.Error("Grant(a.db) = false, want true")
	}
	if rec.Grant("a.db") {
		t.Error("second Grant(a.db) = true, want false")
	}
	rec.Grant("b.db")
	if !rec.Revoke("a.db") {
		t.Error("Revoke(a.db) = false, want true")
	}
	if rec.Allows("a.db") || !rec.Allows("b.db") {
		t.Errorf("AllowedDBs = %v, want [b.db]", rec.AllowedDBs)
	}

	all := UserRecord{Role: RoleUser, AllowedDBs: []string{AllDatabases}}
	if !all.AllowsAll() || !all.Allows("anything.db") {
		t.Error("[all] record should allow every database")
	}
	mixed := UserRecord{Role: RoleUser, AllowedDBs: []string{AllDatabases, "x.db"}}
	if mixed.AllowsAll() {
		t.Error("AllowsAll() = true for list with extra entries")
	}
}
