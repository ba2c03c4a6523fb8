package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// printMarkdown renders a markdown document to the terminal through glamour,
// falling back to the raw text when rendering fails.
func printMarkdown(doc string) {
	out, err := glamour.RenderWithEnvironmentConfig(doc)
	if err != nil {
		fmt.Print(doc)
		return
	}
	fmt.Print(out)
}
