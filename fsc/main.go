// Command fsc reconciles municipal budget extracts into Parquet artifacts.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"

	"github.com/opencouncil/fiscal/cmd"
)

func main() {
	completer().Complete("fsc")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "help")
	commander.Register(commander.FlagsCommand(), "help")
	commander.Register(commander.CommandsCommand(), "help")
	cmd.Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// completer describes the command tree for shell completion. It must be
// consulted before flag parsing.
func completer() *complete.Command {
	dirFlags := map[string]complete.Predictor{"dir": predict.Dirs("*")}
	return &complete.Command{
		Flags: map[string]complete.Predictor{
			"c": predict.Files("*.yaml"),
			"v": predict.Nothing,
		},
		Sub: map[string]*complete.Command{
			"build": {Flags: map[string]complete.Predictor{
				"o":   predict.Dirs("*"),
				"csv": predict.Nothing,
			}},
			"verify": {Flags: dirFlags},
			"show": {Flags: map[string]complete.Predictor{
				"dir":        predict.Dirs("*"),
				"view":       predict.Something,
				"audit":      predict.Nothing,
				"manifest":   predict.Nothing,
				"from":       predict.Something,
				"to":         predict.Something,
				"category":   predict.Set{"expense", "revenue"},
				"fund-type":  predict.Something,
				"dept-group": predict.Something,
				"district":   predict.Something,
				"class":      predict.Something,
				"limit":      predict.Something,
			}},
			"views":    {},
			"mappings": {},
			"topic":    {},
		},
	}
}
