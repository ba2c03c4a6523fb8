// Package renderer turns engine results into markdown for the terminal.
// Artifacts on disk are rendered by the engine itself; this package only
// formats what the fsc commands print.
package renderer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	md "github.com/nao1215/markdown"

	"github.com/opencouncil/fiscal"
)

// RunMarkdown renders the outcome of a build run. The full trail is in the
// published audit.md artifact; this is the short form for the terminal.
func RunMarkdown(rep *fiscal.RunReport) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	m := rep.Manifest

	doc.H1("Build Report")
	doc.PlainText(fmt.Sprintf("Run %s finished at %s (engine %s).",
		m.Run, m.Finished.Format(time.RFC3339), m.Version))

	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
		Header:    []string{md.Bold("Entities"), md.Bold(strconv.Itoa(m.Entities))},
		Rows: [][]string{
			{"Facts", strconv.Itoa(m.Facts)},
			{"Hierarchy conflicts", strconv.Itoa(m.Conflicts)},
			{"Aliases", strconv.Itoa(m.Aliases)},
			{"Inputs", strconv.Itoa(len(m.Inputs))},
			{"Artifacts", strconv.Itoa(len(m.Artifacts))},
		},
	})

	if len(rep.Views) > 0 {
		doc.H2("Views")
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignRight},
			Header:    []string{"View", "Dimensions", "Rows"},
		}
		for _, v := range rep.Views {
			table.Rows = append(table.Rows, []string{
				v.Spec.Name,
				strings.Join(v.Spec.DimensionNames(), ", "),
				strconv.Itoa(len(v.Rows)),
			})
		}
		doc.Table(table)
	}

	var warns []string
	for _, d := range rep.Audit.Drops {
		warns = append(warns, fmt.Sprintf("dropped %d %s records from %s FY%d", d.Count, d.Cycle, d.Source, d.Year))
	}
	for _, miss := range rep.Audit.RefMisses {
		warns = append(warns, fmt.Sprintf("no %s reference row for code %q (%d records)", miss.Table, miss.Code, miss.Count))
	}
	if len(warns) > 0 {
		doc.H2("Warnings")
		doc.OrderedList(warns...)
	}

	return doc.String()
}
