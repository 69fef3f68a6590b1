// File: cmd/agentwire/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// agentwire runs and exercises agent frame endpoints.

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
