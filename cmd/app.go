// Package cmd implements the CLI application driving the reconciliation
// pipeline.
package cmd

import (
	"flag"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/opencouncil/fiscal"
	"github.com/opencouncil/fiscal/logging"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&buildCmd{}, "pipeline")
	c.Register(&verifyCmd{}, "pipeline")

	c.Register(&showCmd{}, "inspection")
	c.Register(&viewsCmd{}, "inspection")
	c.Register(&mappingsCmd{}, "inspection")

	c.Register(&topicCmd{}, "documentation")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var configFile = flag.String("c", "fiscal.yaml", "Path to the pipeline configuration file")
var verbose = flag.Bool("v", false, "Enable debug logging")

// LoadPlan loads and compiles the pipeline configuration from the global
// config flag.
func LoadPlan() (*fiscal.Plan, error) {
	return fiscal.LoadConfig(*configFile)
}

// Logger returns the logger selected by the global flags.
func Logger() zerolog.Logger {
	return logging.New(*verbose)
}
