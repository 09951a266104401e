package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SearchResult holds the matching rows of one table
type SearchResult struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Search returns rows containing term in any column, compared
// case-insensitively. tables limits the search; empty means every table.
// Tables without matches are omitted.
func (d *DB) Search(ctx context.Context, term string, tables []string) ([]SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return nil, fmt.Errorf("%w: search term is required", ErrInvalidInput)
	}

	if len(tables) == 0 {
		var err error
		tables, err = d.ListTables(ctx)
		if err != nil {
			return nil, err
		}
	}

	results := []SearchResult{}
	for _, name := range tables {
		t, err := d.LoadTable(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNoTable) {
				continue
			}
			return nil, err
		}

		var matched []Row
		for i, row := range t.Rows {
			for _, c := range t.Columns {
				if strings.Contains(strings.ToLower(t.String(i, c)), needle) {
					matched = append(matched, row)
					break
				}
			}
		}
		if len(matched) > 0 {
			results = append(results, SearchResult{Table: t.Name, Columns: t.Columns, Rows: matched})
		}
	}
	return results, nil
}
