package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/opencouncil/fiscal"
	"github.com/opencouncil/fiscal/fy"
	"github.com/opencouncil/fiscal/renderer"
)

type showCmd struct {
	dir      string
	view     string
	audit    bool
	manifest bool

	from      string
	to        string
	category  string
	fundType  string
	deptGroup string
	district  string
	class     string
	limit     int
}

func (*showCmd) Name() string { return "show" }
func (*showCmd) Synopsis() string {
	return "display a published view, the audit report, or the manifest"
}
func (*showCmd) Usage() string {
	return `fsc show -view <name> [-from <fy>] [-to <fy>] [-category <c>] [-fund-type <t>] [-dept-group <g>] [-district <d>] [-class <c>] [-limit <n>]
fsc show -audit
fsc show -manifest

  Reads the artifacts of the last completed run. With -view, queries one
  aggregate view through DuckDB and renders the matching rows; filters apply
  only to columns the view carries. With -audit or -manifest, prints the
  published report as is.
`
}

func (c *showCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dir, "dir", "", "Artifact directory (defaults to the configured output)")
	f.StringVar(&c.view, "view", "", "Name of the view to display")
	f.BoolVar(&c.audit, "audit", false, "Display the published audit report")
	f.BoolVar(&c.manifest, "manifest", false, "Display the published manifest")
	f.StringVar(&c.from, "from", "", "Keep fiscal years at or after this one")
	f.StringVar(&c.to, "to", "", "Keep fiscal years at or before this one")
	f.StringVar(&c.category, "category", "", "Keep rows of this category (expense, revenue)")
	f.StringVar(&c.fundType, "fund-type", "", "Keep rows of this fund type")
	f.StringVar(&c.deptGroup, "dept-group", "", "Keep rows of this department group")
	f.StringVar(&c.district, "district", "", "Keep rows of this district")
	f.StringVar(&c.class, "class", "", "Keep rows of this classification")
	f.IntVar(&c.limit, "limit", 0, "Stop after this many rows")
}

func (c *showCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dir, status := artifactDir(c.dir)
	if status != subcommands.ExitSuccess {
		return status
	}

	switch {
	case c.audit:
		doc, err := fiscal.ReadAudit(dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		printMarkdown(doc)
		return subcommands.ExitSuccess

	case c.manifest:
		m, err := fiscal.ReadManifest(dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		if err := fiscal.EncodeManifest(os.Stdout, m); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess

	case c.view != "":
		return c.showView(ctx, dir)
	}

	fmt.Fprintln(os.Stderr, "one of -view, -audit or -manifest is required")
	return subcommands.ExitUsageError
}

func (c *showCmd) showView(ctx context.Context, dir string) subcommands.ExitStatus {
	m, err := fiscal.ReadManifest(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	q := fiscal.ViewQuery{
		View:      c.view,
		Category:  c.category,
		FundType:  c.fundType,
		DeptGroup: c.deptGroup,
		District:  c.district,
		Class:     c.class,
		Limit:     c.limit,
	}
	if c.from != "" {
		if q.From, err = fy.Parse(c.from); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}
	if c.to != "" {
		if q.To, err = fy.Parse(c.to); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}

	res, err := fiscal.QueryView(ctx, dir, &m, q)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.QueryMarkdown(c.view, res))
	return subcommands.ExitSuccess
}
