package fiscal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/opencouncil/fiscal/fy"
)

// ViewQuery is a bounded filtered read over one written AggregateView.
// Filters apply only when the view carries the column.
type ViewQuery struct {
	View      string
	From, To  fy.Year // fiscal_year bounds
	Category  string
	FundType  string
	DeptGroup string
	District  string
	Class     string
	Limit     int
}

// QueryResult carries the selected rows, formatted for display. Absent
// measures render as "-".
type QueryResult struct {
	Columns []string
	Rows    [][]string
}

// QueryView builds a SELECT over a view's Parquet artifact and executes it
// through DuckDB. It honors only the columns the view actually has: a filter
// naming a missing column is a ConfigurationError naming that column.
func QueryView(ctx context.Context, dir string, m *Manifest, q ViewQuery) (*QueryResult, error) {
	art := m.View(q.View)
	if art == nil {
		return nil, &ConfigurationError{Field: "view", Reason: fmt.Sprintf("no view %q in the manifest", q.View)}
	}
	has := func(col string) bool { return slices.Contains(art.Dims, col) }

	cols := append(append([]string{}, art.Dims...),
		"budgeted", "actual", "variance", "facts", "budgeted_facts", "actual_facts")
	b := sq.Select(cols...).From(parquetRef(filepath.Join(dir, filepath.FromSlash(art.Name))))

	filters := []struct {
		col   string
		value string
	}{
		{"category", q.Category},
		{"fund_type", q.FundType},
		{"department_group", q.DeptGroup},
		{"district", q.District},
		{"classification", q.Class},
	}
	for _, f := range filters {
		if f.value == "" {
			continue
		}
		if !has(f.col) {
			return nil, &ConfigurationError{Field: f.col, Reason: fmt.Sprintf("view %q has no %s column", q.View, f.col)}
		}
		b = b.Where(sq.Eq{f.col: f.value})
	}
	if q.From.Valid() || q.To.Valid() {
		if !has("fiscal_year") {
			return nil, &ConfigurationError{Field: "fiscal_year", Reason: fmt.Sprintf("view %q has no fiscal_year column", q.View)}
		}
		if q.From.Valid() {
			b = b.Where(sq.Expr("CAST(fiscal_year AS INTEGER) >= ?", int(q.From)))
		}
		if q.To.Valid() {
			b = b.Where(sq.Expr("CAST(fiscal_year AS INTEGER) <= ?", int(q.To)))
		}
	}
	b = b.OrderBy(art.Dims...)
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("could not build view query: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("could not open duckdb: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("view query failed: %w", err)
	}
	defer rows.Close()

	out := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = formatCell(v)
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, rows.Err()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return fmt.Sprintf("%.2f", t)
	case int32:
		return strconv.Itoa(int(t))
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
