// Command composer inspects entity documents and runs the interactive
// hierarchy view over them.
package main

import (
	"fmt"
	"os"

	"github.com/vanderheijden86/composer/pkg/debug"
)

func main() {
	err := newRootCmd(os.Stdout, os.Stderr).Execute()
	_ = debug.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
