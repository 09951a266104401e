package predict

import (
	"reflect"
	"testing"
	"time"
)

var today = time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return today.AddDate(0, 0, -n)
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		days int
		want Status
	}{
		{-10, StatusOverdue},
		{-1, StatusOverdue},
		{0, StatusDueSoon},
		{10, StatusDueSoon},
		{30, StatusDueSoon},
		{31, StatusOnSchedule},
		{200, StatusOnSchedule},
	}

	for _, tt := range tests {
		if got := Classify(tt.days, DefaultDueSoonDays); got != tt.want {
			t.Errorf("Classify(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}

func TestEstimateForklift(t *testing.T) {
	intervals := map[string]int{"Forklift": 60}
	equipment := []Equipment{{ID: "FL-1", Type: "Forklift"}}

	tests := []struct {
		name     string
		lastDone int
		wantDays int
		want     Status
	}{
		{"serviced 50 days ago", 50, 10, StatusDueSoon},
		{"serviced 70 days ago", 70, -10, StatusOverdue},
		{"serviced 60 days ago", 60, 0, StatusDueSoon},
		{"serviced 61 days ago", 61, -1, StatusOverdue},
		{"serviced 29 days ago", 29, 31, StatusOnSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := []Record{{EquipmentID: "FL-1", Date: daysAgo(tt.lastDone)}}
			got := Estimate(equipment, history, intervals, today, DefaultOptions())
			if len(got) != 1 {
				t.Fatalf("Estimate() returned %d rows, want 1", len(got))
			}
			p := got[0]
			if p.IntervalDays != 60 {
				t.Errorf("IntervalDays = %d, want 60", p.IntervalDays)
			}
			if p.DaysRemaining == nil || *p.DaysRemaining != tt.wantDays {
				t.Errorf("DaysRemaining = %v, want %d", p.DaysRemaining, tt.wantDays)
			}
			if p.Status != tt.want {
				t.Errorf("Status = %q, want %q", p.Status, tt.want)
			}
		})
	}
}

func TestEstimateNeverServiced(t *testing.T) {
	equipment := []Equipment{{ID: "GEN-7", Type: "Generator"}}
	history := []Record{
		{EquipmentID: "GEN-8", Date: daysAgo(1)},
		{EquipmentID: "GEN-7", Date: time.Time{}},
	}

	for _, intervals := range []map[string]int{nil, {"Generator": 1}, {"Generator": 365}} {
		got := Estimate(equipment, history, intervals, today, DefaultOptions())
		p := got[0]
		if p.Status != StatusNeverServiced {
			t.Errorf("Status = %q, want Never Serviced (intervals %v)", p.Status, intervals)
		}
		if p.LastMaintenance != nil || p.NextDue != nil || p.DaysRemaining != nil {
			t.Errorf("dates set for never serviced equipment: %+v", p)
		}
	}
}

func TestEstimateDefaultInterval(t *testing.T) {
	equipment := []Equipment{{ID: "P-1", Type: "Pump"}}
	history := []Record{{EquipmentID: "P-1", Date: daysAgo(10)}}

	got := Estimate(equipment, history, map[string]int{"Forklift": 60}, today, DefaultOptions())
	if got[0].IntervalDays != 90 {
		t.Errorf("IntervalDays = %d, want 90", got[0].IntervalDays)
	}
	if *got[0].DaysRemaining != 80 {
		t.Errorf("DaysRemaining = %d, want 80", *got[0].DaysRemaining)
	}
	if got[0].Status != StatusOnSchedule {
		t.Errorf("Status = %q, want On Schedule", got[0].Status)
	}
}

func TestEstimateObservedInterval(t *testing.T) {
	equipment := []Equipment{{ID: "C-1", Type: "Compressor"}}
	// Out of order on purpose; gaps are 10 and 31 days
	history := []Record{
		{EquipmentID: "C-1", Date: daysAgo(31)},
		{EquipmentID: "C-1", Date: daysAgo(0)},
		{EquipmentID: "C-1", Date: daysAgo(41)},
	}

	p := Estimate(equipment, history, nil, today, DefaultOptions())[0]
	if p.ObservedInterval == nil || *p.ObservedInterval != 20 {
		t.Errorf("ObservedInterval = %v, want 20 (mean 20.5 truncated)", p.ObservedInterval)
	}
	if !p.LastMaintenance.Equal(Day(today)) {
		t.Errorf("LastMaintenance = %v, want latest date", p.LastMaintenance)
	}

	single := Estimate(equipment, history[:1], nil, today, DefaultOptions())[0]
	if single.ObservedInterval != nil {
		t.Errorf("ObservedInterval with one record = %v, want nil", *single.ObservedInterval)
	}
}

func TestEstimateIDNormalization(t *testing.T) {
	equipment := []Equipment{{ID: "  fl-1 ", Type: " Forklift "}}
	history := []Record{{EquipmentID: "FL-1", Date: daysAgo(5)}}

	p := Estimate(equipment, history, map[string]int{"Forklift": 60}, today, DefaultOptions())[0]
	if p.Status != StatusOnSchedule {
		t.Errorf("Status = %q, want On Schedule", p.Status)
	}
	if p.EquipmentID != "fl-1" || p.EquipmentType != "Forklift" {
		t.Errorf("ID/Type = %q/%q, want trimmed values", p.EquipmentID, p.EquipmentType)
	}
	if p.IntervalDays != 60 {
		t.Errorf("IntervalDays = %d, want 60 (type trimmed before lookup)", p.IntervalDays)
	}
}

func TestEstimateIsPure(t *testing.T) {
	equipment := []Equipment{
		{ID: "A", Type: "Forklift"},
		{ID: "B", Type: "Pump"},
		{ID: "C", Type: "Pump"},
	}
	history := []Record{
		{EquipmentID: "B", Date: daysAgo(100)},
		{EquipmentID: "A", Date: daysAgo(3)},
		{EquipmentID: "A", Date: daysAgo(50)},
	}
	intervals := map[string]int{"Forklift": 60, "Pump": 30}

	first := Estimate(equipment, history, intervals, today, DefaultOptions())
	second := Estimate(equipment, history, intervals, today, DefaultOptions())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Estimate() not deterministic:\n%+v\n%+v", first, second)
	}
	if history[0].EquipmentID != "B" {
		t.Error("Estimate() reordered the caller's history")
	}
	if first[0].EquipmentID != "A" || first[1].EquipmentID != "B" || first[2].EquipmentID != "C" {
		t.Error("Estimate() changed equipment order")
	}
}

func TestParseDate(t *testing.T) {
	valid := []string{"2026-10-01", "2026-10-01T08:00:00Z", "2026-10-01 08:00:00", " 2026/10/01 "}
	for _, s := range valid {
		got, err := ParseDate(s)
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", s, err)
			continue
		}
		if !got.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("ParseDate(%q) = %v", s, got)
		}
	}
	for _, s := range []string{"", "yesterday", "10/01/2026"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("ParseDate(%q) expected error", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]Status{
		"overdue":        StatusOverdue,
		"Due Soon":       StatusDueSoon,
		"due-soon":       StatusDueSoon,
		"on_schedule":    StatusOnSchedule,
		"never serviced": StatusNeverServiced,
	}
	for in, want := range tests {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := ParseStatus("late"); err == nil {
		t.Error("ParseStatus(late) expected error")
	}
}

func TestFilterAndSummarize(t *testing.T) {
	equipment := []Equipment{{ID: "A", Type: "X"}, {ID: "B", Type: "X"}, {ID: "C", Type: "X"}}
	history := []Record{
		{EquipmentID: "A", Date: daysAgo(200)},
		{EquipmentID: "B", Date: daysAgo(1)},
	}
	preds := Estimate(equipment, history, nil, today, DefaultOptions())

	overdue := FilterByStatus(preds, StatusOverdue)
	if len(overdue) != 1 || overdue[0].EquipmentID != "A" {
		t.Errorf("FilterByStatus(Overdue) = %+v", overdue)
	}

	counts := Summarize(preds)
	want := map[Status]int{StatusOverdue: 1, StatusDueSoon: 0, StatusOnSchedule: 1, StatusNeverServiced: 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("Summarize() = %v, want %v", counts, want)
	}
}
