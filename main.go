// The main package for the docharvest executable.
package main

import (
	"github.com/JakeFAU/doc-harvester/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
