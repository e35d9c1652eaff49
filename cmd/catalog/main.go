// Command catalog manages a prosopography catalog: it imports and exports
// fixtures, edits collection membership and serves the read API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
