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

type verifyCmd struct {
	dir string
}

func (*verifyCmd) Name() string { return "verify" }
func (*verifyCmd) Synopsis() string {
	return "check published artifacts for internal consistency"
}
func (*verifyCmd) Usage() string {
	return `fsc verify [-dir <dir>]

  Re-reads the published Parquet artifacts through DuckDB and checks fact
  key uniqueness, roll-up consistency, view row bounds, and plausibility
  bands. Exits non-zero when any check fails; warnings do not fail the run.
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dir, "dir", "", "Artifact directory (defaults to the configured output)")
}

func (c *verifyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dir, status := artifactDir(c.dir)
	if status != subcommands.ExitSuccess {
		return status
	}

	results, err := fiscal.Verify(ctx, dir, fiscal.VerifyConfig{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	printMarkdown(renderer.VerifyMarkdown(results))
	if fiscal.Failed(results) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// artifactDir resolves the directory holding published artifacts: an explicit
// flag wins, otherwise the configured output directory.
func artifactDir(flagged string) (string, subcommands.ExitStatus) {
	if flagged != "" {
		return flagged, subcommands.ExitSuccess
	}
	plan, err := LoadPlan()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return "", subcommands.ExitUsageError
	}
	return plan.Output, subcommands.ExitSuccess
}
