package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/opencouncil/fiscal"
	"github.com/opencouncil/fiscal/renderer"
)

type buildCmd struct {
	output string
	csv    bool
	cycle  string
}

func (*buildCmd) Name() string { return "build" }
func (*buildCmd) Synopsis() string {
	return "run the reconciliation pipeline and publish artifacts"
}
func (*buildCmd) Usage() string {
	return `fsc build [-o <dir>] [-csv] [-cycle <adopted|proposed>]

  Normalizes the configured extracts, resolves the entity hierarchy,
  reconciles budget against actuals, builds the aggregate views, and
  publishes Parquet artifacts with a manifest and an audit report. A run
  replaces the previous artifacts atomically or leaves them untouched.
`
}

func (c *buildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "Output directory (overrides the configuration)")
	f.BoolVar(&c.csv, "csv", false, "Also write CSV siblings next to each Parquet artifact")
	f.StringVar(&c.cycle, "cycle", "", "Preferred budget cycle (overrides the configuration)")
}

func (c *buildCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	plan, err := LoadPlan()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if c.output != "" {
		plan.Output = c.output
	}
	if c.csv {
		plan.CSV = true
	}
	if c.cycle != "" {
		cycle, err := fiscal.ParseCycle(c.cycle)
		if err != nil || cycle == fiscal.CycleActual {
			fmt.Fprintf(os.Stderr, "-cycle: preferred budget cycle must be adopted or proposed\n")
			return subcommands.ExitUsageError
		}
		plan.Reconcile.Cycle = cycle
	}

	runner := fiscal.NewRunner(plan)
	runner.Logger = Logger()
	rep, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	printMarkdown(renderer.RunMarkdown(rep))
	return subcommands.ExitSuccess
}
