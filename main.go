// The main package for the quantumboom executable.
package main

import (
	"os"

	"github.com/JakeFAU/quantumboom/cmd"
)

// main defers all execution to the Cobra CLI and exits with its status.
func main() {
	os.Exit(cmd.Execute())
}
