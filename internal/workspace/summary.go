package workspace

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Summary is the dashboard overview of one table
type Summary struct {
	Table        string         `json:"table"`
	Total        int            `json:"total"`
	TypeColumn   string         `json:"type_column,omitempty"`
	ByType       map[string]int `json:"by_type"`
	StatusColumn string         `json:"status_column,omitempty"`
	ByStatus     map[string]int `json:"by_status"`
}

// Summary counts the rows of table by type and by status. Status values are
// title-cased so "active" and "ACTIVE" share a bucket. Empty values are not
// counted.
func (d *DB) Summary(ctx context.Context, table string) (*Summary, error) {
	t, err := d.LoadTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return Summarize(t), nil
}

// Summarize builds a Summary from a loaded table
func Summarize(t *Table) *Summary {
	s := &Summary{
		Table:        t.Name,
		Total:        len(t.Rows),
		TypeColumn:   TypeColumn(t.Columns),
		StatusColumn: StatusColumn(t.Columns),
		ByType:       map[string]int{},
		ByStatus:     map[string]int{},
	}

	title := cases.Title(language.Und)
	for i := range t.Rows {
		if s.TypeColumn != "" {
			if v := strings.TrimSpace(t.String(i, s.TypeColumn)); v != "" {
				s.ByType[v]++
			}
		}
		if s.StatusColumn != "" {
			if v := strings.TrimSpace(t.String(i, s.StatusColumn)); v != "" {
				s.ByStatus[title.String(v)]++
			}
		}
	}
	return s
}
