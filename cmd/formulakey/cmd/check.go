package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Flags for check command
	checkConstraints string
	checkDump        bool
)

var checkCmd = &cobra.Command{
	Use:   "check FORMULA...",
	Short: "Check formulas against element constraints",
	Long: `Check molecular formulas against a chemical alphabet with element bounds
and the valence filter. Without --constraints the constraints of the
configuration file are used.

Constraint syntax lists the alphabet with optional bounds per element:
  CHNOPS           any amount of C, H, N, O, P and S
  CHNOP[5]S[1]     at most 5 P and 1 S
  C[5-10]HNO       between 5 and 10 C

Examples:
  formulakey check --constraints "CHNO[5]" C6H12O6 C5H10O5
  formulakey check --constraints "CHNOPS" --dump`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkConstraints, "constraints", "", "Element constraints, e.g. CHNOP[5]S[1]")
	checkCmd.Flags().BoolVar(&checkDump, "dump", false, "Print the constraints as YAML for a configuration file")
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	c, err := e.constraints(checkConstraints)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("no constraints given, use --constraints or a configuration file")
	}

	if checkDump {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	}
	if len(args) == 0 {
		return nil
	}

	violations := 0
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMULA\tRESULT")
	for _, text := range args {
		f, err := e.registry.Parse(text)
		if err != nil {
			return err
		}
		result := "ok"
		switch {
		case c.IsAlphabetViolated(f):
			result = "alphabet violated"
		case c.IsViolated(f):
			result = "violated"
		}
		if result != "ok" {
			violations++
		}
		fmt.Fprintf(tw, "%s\t%s\n", f, result)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if violations > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d formulas violate %s\n", violations, len(args), c)
	}
	return nil
}
