// Package predict estimates when equipment is next due for maintenance.
//
// Estimate is a pure function of its inputs: it performs no I/O and never
// reads the clock, so the caller supplies "today".
package predict

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is a predicted maintenance bucket
type Status string

const (
	StatusOverdue       Status = "Overdue"
	StatusDueSoon       Status = "Due Soon"
	StatusOnSchedule    Status = "On Schedule"
	StatusNeverServiced Status = "Never Serviced"
)

// Statuses lists every status in display order
var Statuses = []Status{StatusOverdue, StatusDueSoon, StatusOnSchedule, StatusNeverServiced}

const (
	DefaultIntervalDays = 90
	DefaultDueSoonDays  = 30
)

// DateLayout is the calendar date format used for input and output
const DateLayout = "2006-01-02"

// Equipment is one row of the active table
type Equipment struct {
	ID   string
	Type string
}

// Record is one maintenance event
type Record struct {
	EquipmentID string
	Date        time.Time
}

// Options tune the estimator
type Options struct {
	DefaultIntervalDays int
	DueSoonDays         int
}

// DefaultOptions returns the stock thresholds
func DefaultOptions() Options {
	return Options{DefaultIntervalDays: DefaultIntervalDays, DueSoonDays: DefaultDueSoonDays}
}

// Prediction is the estimator output for one equipment row
type Prediction struct {
	EquipmentID      string     `json:"equipment_id"`
	EquipmentType    string     `json:"equipment_type"`
	LastMaintenance  *time.Time `json:"last_maintenance,omitempty"`
	IntervalDays     int        `json:"interval_days"`
	ObservedInterval *int       `json:"observed_interval_days,omitempty"`
	NextDue          *time.Time `json:"next_due,omitempty"`
	DaysRemaining    *int       `json:"days_remaining,omitempty"`
	Status           Status     `json:"status"`
}

// NormalizeID is the identifier comparison key: trimmed and lower-cased
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ParseDate parses a maintenance date. Accepts a calendar date or an RFC 3339
// timestamp; the time of day is discarded.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns whole calendar days from a to b
func daysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Classify maps days remaining to a status
func Classify(daysRemaining, dueSoonDays int) Status {
	switch {
	case daysRemaining < 0:
		return StatusOverdue
	case daysRemaining <= dueSoonDays:
		return StatusDueSoon
	default:
		return StatusOnSchedule
	}
}

// Estimate computes one prediction per equipment row, in input order.
// intervals maps trimmed equipment type to configured days.
func Estimate(equipment []Equipment, history []Record, intervals map[string]int, today time.Time, opts Options) []Prediction {
	if opts.DefaultIntervalDays <= 0 {
		opts.DefaultIntervalDays = DefaultIntervalDays
	}
	if opts.DueSoonDays < 0 {
		opts.DueSoonDays = DefaultDueSoonDays
	}
	today = Day(today)

	byID := make(map[string][]time.Time)
	for _, rec := range history {
		if rec.Date.IsZero() {
			continue
		}
		key := NormalizeID(rec.EquipmentID)
		byID[key] = append(byID[key], Day(rec.Date))
	}
	for _, dates := range byID {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	}

	result := make([]Prediction, 0, len(equipment))
	for _, eq := range equipment {
		typ := strings.TrimSpace(eq.Type)
		p := Prediction{
			EquipmentID:   strings.TrimSpace(eq.ID),
			EquipmentType: typ,
			IntervalDays:  opts.DefaultIntervalDays,
		}
		if days, ok := intervals[typ]; ok && days > 0 {
			p.IntervalDays = days
		}

		dates := byID[NormalizeID(eq.ID)]
		if len(dates) >= 2 {
			observed := observedInterval(dates)
			p.ObservedInterval = &observed
		}

		if len(dates) == 0 {
			p.Status = StatusNeverServiced
			result = append(result, p)
			continue
		}

		last := dates[len(dates)-1]
		next := last.AddDate(0, 0, p.IntervalDays)
		remaining := daysBetween(today, next)

		p.LastMaintenance = &last
		p.NextDue = &next
		p.DaysRemaining = &remaining
		p.Status = Classify(remaining, opts.DueSoonDays)
		result = append(result, p)
	}

	return result
}

// observedInterval is the mean gap between consecutive sorted dates,
// truncated toward zero
func observedInterval(dates []time.Time) int {
	total := 0
	for i := 1; i < len(dates); i++ {
		total += daysBetween(dates[i-1], dates[i])
	}
	return total / (len(dates) - 1)
}

// ParseStatus accepts a status label in any case, with spaces, dashes or underscores
func ParseStatus(s string) (Status, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Statuses {
		if strings.ReplaceAll(strings.ToLower(string(st)), " ", "") == key {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// FilterByStatus returns the predictions with the given status
func FilterByStatus(predictions []Prediction, status Status) []Prediction {
	var result []Prediction
	for _, p := range predictions {
		if p.Status == status {
			result = append(result, p)
		}
	}
	return result
}

// Summarize counts predictions per status; every status is present
func Summarize(predictions []Prediction) map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, st := range Statuses {
		counts[st] = 0
	}
	for _, p := range predictions {
		counts[p.Status]++
	}
	return counts
}
