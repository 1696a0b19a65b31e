// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/config"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
)

var (
	// Global flags
	configFile string
	logLevel   string
	logFormat  string
)

// env is the registry and ion table shared by all commands of one run.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *chem.Registry
	table    *ion.Table
}

var rootCmd = &cobra.Command{
	Use:   "formulakey",
	Short: "FormulaKey - chemical formula and ion type toolkit",
	Long: `FormulaKey parses molecular formulas and precursor ion types, checks
formulas against element constraints and converts annotated spectral
libraries (MSP and SpectraST SPTXT) to SQLite databases compatible with
RTLS/mzVault workflows.

Formulas use Hill notation with groups, e.g. C6H12O6 or (CH3)3COH.
Ion types use bracket notation, e.g. [M+H]+, [M+Na]+ or [M-H2O+H]+.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")

	rootCmd.AddCommand(formulaCmd)
	rootCmd.AddCommand(ionCmd)
	rootCmd.AddCommand(ionsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(convertCmd)
}

// loadEnv reads the configuration and builds the registry and ion table.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)
	registry, err := cfg.NewRegistry(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build element registry: %w", err)
	}
	table, err := cfg.NewIonTable(registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build ion table: %w", err)
	}
	logger.Debug("environment ready",
		slog.Int("elements", registry.Len()),
		slog.Int("ionTypes", len(table.IonTypes(0))),
		slog.String("config", configFile))

	return &env{cfg: cfg, logger: logger, registry: registry, table: table}, nil
}

// constraints returns the constraints given on the command line, or the
// configured ones when text is empty.
func (e *env) constraints(text string) (*chem.FormulaConstraints, error) {
	if text != "" {
		return e.registry.ParseConstraints(text)
	}
	return e.cfg.NewConstraints(e.registry)
}

func checkFileExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", path)
	}
	return nil
}
