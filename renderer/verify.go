package renderer

import (
	"fmt"
	"strings"

	"github.com/opencouncil/fiscal"
)

// VerifyMarkdown renders post-run check results as a markdown table.
func VerifyMarkdown(results []fiscal.CheckResult) string {
	var b strings.Builder

	fmt.Fprint(&b, "# Verification\n\n")
	fmt.Fprintln(&b, "| Check | Status | Detail |")
	fmt.Fprintln(&b, "|:---|:---|:---|")

	var pass, warn, fail int
	for _, r := range results {
		switch r.Status {
		case fiscal.Pass:
			pass++
		case fiscal.Warn:
			warn++
		case fiscal.Fail:
			fail++
		}
		detail := r.Detail
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Name, r.Status, detail)
	}

	fmt.Fprintf(&b, "\n%d passed, %d warnings, %d failures.\n", pass, warn, fail)
	return b.String()
}
