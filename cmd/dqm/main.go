// Command dqm validates upstream CSV drops: each unscanned file in the source
// directory is trimmed to the schema, checked against its category's rules
// and split into clean, rejected and metadata outputs.
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
