// Command docfeat serves editor features from pluggable document providers.
package main

import (
	"os"

	"github.com/conneroisu/docfeat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// cobra has already printed err
		os.Exit(1)
	}
}
