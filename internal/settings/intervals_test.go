package settings

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestStoreDefaults(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), "/maintenance_settings.yaml", 0)

	days, err := s.Get("equipment", "Forklift")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if days != 90 {
		t.Errorf("Get() = %d, want default 90", days)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("All() = %v, want empty", all)
	}
}

func TestStoreSetAndGet(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(fs, "/etc/equiptrack/maintenance_settings.yaml", 90)

	got, err := s.Set("equipment", map[string]int{" Forklift ": 60, "Pump": 30})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got["Forklift"] != 60 || got["Pump"] != 30 {
		t.Errorf("Set() = %v", got)
	}

	if _, err := s.Set("equipment", map[string]int{"Pump": 45}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := s.Set("yard", map[string]int{"Crane": 120}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	tests := []struct {
		table, typ string
		want       int
	}{
		{"equipment", "Forklift", 60},
		{"equipment", "Pump", 45},
		{"equipment", "Crane", 90},
		{"yard", "Crane", 120},
		{"yard", " Crane ", 120},
	}
	for _, tt := range tests {
		days, err := s.Get(tt.table, tt.typ)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if days != tt.want {
			t.Errorf("Get(%q, %q) = %d, want %d", tt.table, tt.typ, days, tt.want)
		}
	}

	data, _ := afero.ReadFile(fs, "/etc/equiptrack/maintenance_settings.yaml")
	if !strings.Contains(string(data), "Forklift: 60") {
		t.Errorf("settings file = %s", data)
	}

	// Reload from disk through a fresh store
	s2 := NewStore(fs, "/etc/equiptrack/maintenance_settings.yaml", 90)
	resolved, err := s2.Resolve("equipment", []string{"Forklift", "Generator"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved["Forklift"] != 60 || resolved["Generator"] != 90 {
		t.Errorf("Resolve() = %v", resolved)
	}
}

func TestStoreRejectsOutOfRange(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), "/settings.yaml", 90)
	s.Set("equipment", map[string]int{"Pump": 30})

	for _, days := range []int{0, -5, 366} {
		_, err := s.Set("equipment", map[string]int{"Pump": 10, "Forklift": days})
		if !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("Set(%d) error = %v, want ErrInvalidInterval", days, err)
		}
	}

	days, _ := s.Get("equipment", "Pump")
	if days != 30 {
		t.Errorf("Pump = %d after rejected update, want 30", days)
	}

	for _, days := range []int{1, 365} {
		if _, err := s.Set("equipment", map[string]int{"Edge": days}); err != nil {
			t.Errorf("Set(%d) error = %v", days, err)
		}
	}
}

func TestStoreParsesExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "equipment:\n  Forklift: 60\n  Generator: 180\n"
	afero.WriteFile(fs, "/settings.yaml", []byte(content), 0644)

	s := NewStore(fs, "/settings.yaml", 90)
	table, err := s.Table("equipment")
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if table["Generator"] != 180 {
		t.Errorf("Table() = %v", table)
	}

	// The returned map is a copy
	table["Generator"] = 1
	days, _ := s.Get("equipment", "Generator")
	if days != 180 {
		t.Errorf("Get() = %d after mutating copy, want 180", days)
	}
}

func TestStoreTrimsTableName(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), "/maintenance_settings.yaml", 90)

	if _, err := s.Set(" equipment ", map[string]int{"Forklift": 60}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if _, ok := all["equipment"]; !ok || len(all) != 1 {
		t.Errorf("All() = %v, want settings stored under \"equipment\"", all)
	}

	for _, table := range []string{"equipment", "\tequipment "} {
		days, err := s.Get(table, "Forklift")
		if err != nil || days != 60 {
			t.Errorf("Get(%q) = %d, %v, want 60", table, days, err)
		}
		tbl, err := s.Table(table)
		if err != nil || tbl["Forklift"] != 60 {
			t.Errorf("Table(%q) = %v, %v", table, tbl, err)
		}
	}
}
