package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/opencouncil/fiscal/renderer"
)

type viewsCmd struct{}

func (*viewsCmd) Name() string     { return "views" }
func (*viewsCmd) Synopsis() string { return "list the views the pipeline will build" }
func (*viewsCmd) Usage() string {
	return `fsc views

  Lists the compiled view catalog: dimensions, filters, ordering, and row
  bounds per view. Without a views section in the configuration this is the
  built-in catalog.
`
}

func (c *viewsCmd) SetFlags(f *flag.FlagSet) {}

func (c *viewsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	plan, err := LoadPlan()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	printMarkdown(renderer.CatalogMarkdown(plan.Views))
	return subcommands.ExitSuccess
}
