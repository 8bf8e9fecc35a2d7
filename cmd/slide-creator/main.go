// Command slide-creator converts PDF documents into PowerPoint decks.
package main

import (
	"fmt"
	"os"

	"github.com/spherical/slide-creator/cmd/slide-creator/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
