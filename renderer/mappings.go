package renderer

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/opencouncil/fiscal"
)

// MappingsMarkdown renders each extract's compiled column bindings, the way
// the normalizer will read them.
func MappingsMarkdown(extracts []fiscal.Extract) string {
	var b strings.Builder

	fmt.Fprint(&b, "# Column Mappings\n\n")
	for _, ex := range extracts {
		fmt.Fprintf(&b, "## %s\n\n", filepath.Base(ex.Decl.File))
		fmt.Fprintf(&b, "Source %s, %s.\n\n", ex.Decl.Source, ex.Decl.Year)
		fmt.Fprintln(&b, "| Column | Field |")
		fmt.Fprintln(&b, "|:---|:---|")
		for _, col := range slices.Sorted(maps.Keys(ex.Columns)) {
			fmt.Fprintf(&b, "| %s | %s |\n", col, ex.Columns[col])
		}
		fmt.Fprintln(&b)
	}
	return b.String()
}
