package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/opencouncil/fiscal/renderer"
)

type mappingsCmd struct{}

func (*mappingsCmd) Name() string     { return "mappings" }
func (*mappingsCmd) Synopsis() string { return "list the compiled column mappings per extract" }
func (*mappingsCmd) Usage() string {
	return `fsc mappings

  Shows, for every configured extract, which source column feeds which
  canonical field after mapping resolution. Useful to check a mapping
  table before running the pipeline against a new fiscal year.
`
}

func (c *mappingsCmd) SetFlags(f *flag.FlagSet) {}

func (c *mappingsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	plan, err := LoadPlan()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	printMarkdown(renderer.MappingsMarkdown(plan.Extracts))
	return subcommands.ExitSuccess
}
