// signctl resolves road sign images and maintains the sign catalog from the
// command line.
package main

import (
	"os"

	"github.com/menkyo-prep/sign-engine/cmd/signctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
