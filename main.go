// The main package for the webharvest executable.
package main

import (
	"github.com/civicrag/webharvest/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
