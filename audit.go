package fiscal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opencouncil/fiscal/fy"
)

// AliasNote records that a canonical entity was also observed under another
// code or name in some fiscal year.
type AliasNote struct {
	Kind Kind
	Path string // canonical code path
	Name string // canonical display name

	Year      fy.Year
	Code      string // observed code
	AliasName string // observed name
}

// ClassCount tallies facts per variance classification.
type ClassCount struct {
	Class Classification
	Count int
}

// AuditReport is the run-level account of everything the pipeline decided:
// what was read, what was merged, what was dropped and what did not match.
// All slices are in deterministic order so the rendered audit.md is
// byte-identical across runs on the same input.
type AuditReport struct {
	Extracts  []ExtractStat
	Conflicts []HierarchyConflict
	Aliases   []AliasNote
	RefMisses []RefMiss
	Drops     []CycleDrop

	Entities int
	Facts    int
	Years    []fy.Year
	Classes  []ClassCount
}

// NewAuditReport assembles the audit trail of one run.
func NewAuditReport(stats []ExtractStat, res *Resolution, misses []RefMiss, drops []CycleDrop, facts []Fact) *AuditReport {
	rep := &AuditReport{
		Extracts:  stats,
		Conflicts: res.Conflicts,
		RefMisses: misses,
		Drops:     drops,
		Entities:  res.Tree.Len(),
		Facts:     len(facts),
	}

	for e := range res.Tree.All() {
		for _, a := range e.Aliases {
			rep.Aliases = append(rep.Aliases, AliasNote{
				Kind:      e.Kind,
				Path:      res.Tree.Path(e.Key),
				Name:      e.Name,
				Year:      a.Year,
				Code:      a.Code,
				AliasName: a.Name,
			})
		}
	}

	years := make(map[fy.Year]bool)
	classes := make(map[Classification]int)
	for _, f := range facts {
		years[f.Year] = true
		if f.Leaf {
			classes[f.Class]++
		}
	}
	for y := range years {
		rep.Years = append(rep.Years, y)
	}
	sort.Slice(rep.Years, func(i, j int) bool { return rep.Years[i].Before(rep.Years[j]) })
	for c := Unclassified; c <= MissingBudget; c++ {
		if n := classes[c]; n > 0 {
			rep.Classes = append(rep.Classes, ClassCount{Class: c, Count: n})
		}
	}
	return rep
}

// Markdown renders the audit trail as the document written to audit.md.
func (rep *AuditReport) Markdown() string {
	var b strings.Builder

	fmt.Fprint(&b, "# Reconciliation Audit\n\n")
	if len(rep.Years) > 0 {
		fmt.Fprintf(&b, "Fiscal years %s to %s. %d entities, %d facts.\n\n",
			rep.Years[0], rep.Years[len(rep.Years)-1], rep.Entities, rep.Facts)
	} else {
		fmt.Fprintf(&b, "%d entities, %d facts.\n\n", rep.Entities, rep.Facts)
	}

	yearCell := func(y fy.Year) string {
		if y.Valid() {
			return y.String()
		}
		return "-"
	}

	fmt.Fprint(&b, "## Extracts\n\n")
	fmt.Fprintln(&b, "| File | Source | Year | Rows | Records |")
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|")
	for _, s := range rep.Extracts {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d |\n", s.File, s.Source, yearCell(s.Year), s.Rows, s.Records)
	}

	if len(rep.Classes) > 0 {
		fmt.Fprint(&b, "\n## Classification\n\n")
		fmt.Fprintln(&b, "| Classification | Leaf Facts |")
		fmt.Fprintln(&b, "|:---|---:|")
		for _, c := range rep.Classes {
			fmt.Fprintf(&b, "| %s | %d |\n", c.Class, c.Count)
		}
	}

	if len(rep.Conflicts) > 0 {
		fmt.Fprint(&b, "\n## Hierarchy Conflicts\n\n")
		fmt.Fprintln(&b, "| Kind | Code | Name | Losing Parent | Winning Parent |")
		fmt.Fprintln(&b, "|:---|:---|:---|:---|:---|")
		for _, c := range rep.Conflicts {
			fmt.Fprintf(&b, "| %s | %s | %s | %s (%s) | %s (%s) |\n",
				c.Kind, c.Code, c.Name,
				c.LosingParent, c.LosingYear, c.WinningParent, c.WinningYear)
		}
	}

	if len(rep.Aliases) > 0 {
		fmt.Fprint(&b, "\n## Aliases\n\n")
		fmt.Fprintln(&b, "| Kind | Entity | Name | Year | Seen As |")
		fmt.Fprintln(&b, "|:---|:---|:---|:---|:---|")
		for _, a := range rep.Aliases {
			seen := a.Code
			if a.AliasName != "" {
				seen = fmt.Sprintf("%s %q", a.Code, a.AliasName)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", a.Kind, a.Path, a.Name, a.Year, seen)
		}
	}

	if len(rep.RefMisses) > 0 {
		fmt.Fprint(&b, "\n## Reference Misses\n\n")
		fmt.Fprintln(&b, "| Table | Code | Records |")
		fmt.Fprintln(&b, "|:---|:---|---:|")
		for _, m := range rep.RefMisses {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", m.Table, m.Code, m.Count)
		}
	}

	if len(rep.Drops) > 0 {
		fmt.Fprint(&b, "\n## Dropped Budget Cycles\n\n")
		fmt.Fprintln(&b, "| Source | Year | Cycle | Records |")
		fmt.Fprintln(&b, "|:---|:---|:---|---:|")
		for _, d := range rep.Drops {
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", d.Source, yearCell(d.Year), d.Cycle, d.Count)
		}
	}

	return b.String()
}
