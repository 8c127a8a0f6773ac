// The main package for the catalogcrawler executable.
package main

import (
	"github.com/JakeFAU/steam-catalog-crawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
