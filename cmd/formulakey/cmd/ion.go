package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
)

var (
	// Flags for ion command
	ionTypeName string
	ionMZ       float64
	ionFormula  string
	ionMass     float64

	// Flags for ions command
	ionsCharge int
	ionsLikely bool
	ionsMass   float64
	ionsTol    float64
)

var ionCmd = &cobra.Command{
	Use:   "ion",
	Short: "Convert between neutral molecules and precursor ions",
	Long: `Parse a precursor ion type and convert masses or formulas with it.

Examples:
  # Canonical name and modification of an ion type
  formulakey ion --type "[M+ACN+H]+"

  # Precursor ion and m/z of a neutral formula
  formulakey ion --type "[M+Na]+" --formula C6H12O6

  # Neutral mass of a measured precursor m/z
  formulakey ion --type "[M-H]-" --mz 179.0561`,
	RunE: runIon,
}

var ionsCmd = &cobra.Command{
	Use:   "ions",
	Short: "List known precursor ion types",
	Long: `List the known precursor ion types, ordered from the most common.

Examples:
  formulakey ions --charge 1
  formulakey ions --charge -1 --likely
  formulakey ions --charge 1 --mass 22.9892 --tolerance 0.001`,
	RunE: runIons,
}

func init() {
	ionCmd.Flags().StringVarP(&ionTypeName, "type", "t", "", "Precursor ion type (required)")
	ionCmd.Flags().Float64Var(&ionMZ, "mz", 0, "Precursor m/z to convert to the neutral mass")
	ionCmd.Flags().StringVarP(&ionFormula, "formula", "f", "", "Neutral formula to ionize")
	ionCmd.Flags().Float64Var(&ionMass, "mass", 0, "Neutral mass to convert to the precursor m/z")
	ionCmd.MarkFlagRequired("type")

	ionsCmd.Flags().IntVar(&ionsCharge, "charge", 0, "Charge sign to list: 1, -1 or 0 for all")
	ionsCmd.Flags().BoolVar(&ionsLikely, "likely", false, "List the most likely ion types first")
	ionsCmd.Flags().Float64Var(&ionsMass, "mass", 0, "Find the ion type with this modification mass")
	ionsCmd.Flags().Float64Var(&ionsTol, "tolerance", 0.001, "Absolute tolerance for --mass")
}

func runIon(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	typ, err := e.table.ByName(ionTypeName)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ion type:     %s\n", typ)
	fmt.Fprintf(out, "Charge:       %d\n", typ.Charge())
	fmt.Fprintf(out, "Ionization:   %s (%s)\n", typ.Ionization(), typ.Ionization().Kind())
	if !typ.Modification().IsEmpty() {
		fmt.Fprintf(out, "Modification: %s (%.6f)\n", typ.Modification(), typ.ModificationMass())
	}

	if ionFormula != "" {
		f, err := e.registry.Parse(ionFormula)
		if err != nil {
			return err
		}
		if !typ.IsApplicableToNeutralFormula(f) {
			return fmt.Errorf("ion type %s is not applicable to %s", typ, f)
		}
		precursor, err := typ.NeutralMoleculeToPrecursorIon(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Precursor:    %s\n", precursor)
		fmt.Fprintf(out, "m/z:          %.6f\n", typ.NeutralMassToPrecursorMass(f.Mass()))
	}
	if ionMass > 0 {
		fmt.Fprintf(out, "m/z:          %.6f\n", typ.NeutralMassToPrecursorMass(ionMass))
	}
	if ionMZ > 0 {
		fmt.Fprintf(out, "Neutral mass: %.6f\n", typ.PrecursorMassToNeutralMass(ionMZ))
		fmt.Fprintf(out, "Measured:     %.6f\n", typ.PrecursorMassToMeasuredNeutralMass(ionMZ))
	}
	return nil
}

func runIons(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("mass") {
		typ, ok := e.table.ByMass(ionsMass, ionsTol, ionsCharge)
		if !ok {
			return fmt.Errorf("no ion type with modification mass %.6f ± %g", ionsMass, ionsTol)
		}
		fmt.Fprintln(cmd.OutOrStdout(), typ)
		return nil
	}

	var types []ion.PrecursorIonType
	if ionsLikely {
		if types, err = e.table.KnownLikelyPrecursorIonTypes(ionsCharge); err != nil {
			return err
		}
	} else {
		types = e.table.IonTypes(ionsCharge)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ION TYPE\tCHARGE\tMODIFICATION\tMASS SHIFT")
	for _, typ := range types {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.6f\n", typ, typ.Charge(), typ.Modification(), typ.ModificationMass())
	}
	return tw.Flush()
}
