package renderer

import (
	"fmt"
	"strings"

	"github.com/opencouncil/fiscal"
)

// measureColumns is the number of trailing measure columns in a view query
// result, after the view's dimension columns.
const measureColumns = 6

// QueryMarkdown renders view rows as a markdown table. Dimension columns are
// left aligned, measures right aligned.
func QueryMarkdown(name string, res *fiscal.QueryResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# View %s\n\n", name)
	if len(res.Rows) == 0 {
		fmt.Fprintln(&b, "No rows match.")
		return b.String()
	}

	dims := len(res.Columns) - measureColumns
	if dims < 0 {
		dims = len(res.Columns)
	}
	fmt.Fprintf(&b, "| %s |\n", strings.Join(res.Columns, " | "))
	aligns := make([]string, len(res.Columns))
	for i := range aligns {
		if i < dims {
			aligns[i] = ":---"
		} else {
			aligns[i] = "---:"
		}
	}
	fmt.Fprintf(&b, "|%s|\n", strings.Join(aligns, "|"))
	for _, row := range res.Rows {
		fmt.Fprintf(&b, "| %s |\n", strings.Join(row, " | "))
	}

	fmt.Fprintf(&b, "\n%d rows.\n", len(res.Rows))
	return b.String()
}

// CatalogMarkdown renders the compiled view catalog of a plan.
func CatalogMarkdown(specs []fiscal.ViewSpec) string {
	var b strings.Builder

	fmt.Fprint(&b, "# Views\n\n")
	fmt.Fprintln(&b, "| View | Dimensions | Filter | Sort | Rows |")
	fmt.Fprintln(&b, "|:---|:---|:---|:---|:---|")
	for _, spec := range specs {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d to %d |\n",
			spec.Name,
			strings.Join(spec.DimensionNames(), ", "),
			filterLabel(spec.Filter),
			sortLabel(spec.Sort),
			spec.MinRows, spec.MaxRows,
		)
	}
	return b.String()
}

func filterLabel(f fiscal.ViewFilter) string {
	var parts []string
	if f.Category != fiscal.CategoryUnknown {
		parts = append(parts, f.Category.String())
	}
	if f.Fund != "" {
		parts = append(parts, "fund "+f.Fund)
	}
	switch {
	case f.Years.From.Valid() && f.Years.To.Valid():
		parts = append(parts, f.Years.String())
	case f.Years.From.Valid():
		parts = append(parts, "from "+f.Years.From.String())
	case f.Years.To.Valid():
		parts = append(parts, "through "+f.Years.To.String())
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func sortLabel(keys []fiscal.SortKey) string {
	if len(keys) == 0 {
		return "-"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}
