// FormulaKey - chemical formula and ion type toolkit for mass spectrometry
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/FormulaKey/cmd/formulakey/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
