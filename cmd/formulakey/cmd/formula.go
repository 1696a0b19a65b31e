package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var formulaCmd = &cobra.Command{
	Use:   "formula FORMULA...",
	Short: "Print mass and composition of molecular formulas",
	Long: `Parse molecular formulas and print the Hill notation, monoisotopic mass,
nominal mass and rings plus double bonds (RDBE) of each.

Examples:
  formulakey formula C6H12O6
  formulakey formula "(CH3)3COH" C2H5OH`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFormula,
}

func runFormula(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tFORMULA\tMASS\tNOMINAL\tRDBE")
	for _, text := range args {
		f, err := e.registry.Parse(text)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%d\t%.1f\n", text, f, f.Mass(), f.NominalMass(), f.RDBE())
	}
	return tw.Flush()
}
