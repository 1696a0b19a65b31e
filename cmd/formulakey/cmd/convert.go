package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/filter"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
	"github.com/ChrisMcGann/FormulaKey/pkg/library"
	"github.com/ChrisMcGann/FormulaKey/pkg/peptide"
	"github.com/ChrisMcGann/FormulaKey/pkg/reader/msp"
	"github.com/ChrisMcGann/FormulaKey/pkg/reader/sptxt"
	"github.com/ChrisMcGann/FormulaKey/pkg/writer/sqlite"
)

var (
	// Flags for convert command
	inputFile          string
	outputFile         string
	fragmentation      string
	massAnalyzer       string
	topN               int
	cutoffPercent      float64
	ionTypes           string
	convertConstraints string
	ppmTolerance       float64
	recalculate        bool
	modsCSV            string
	threads            int
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert an MSP or SPTXT spectral library to a SQLite database",
	Long: `Convert an MSP spectral library of small molecules or peptides, or a
SpectraST (SPTXT) peptide library, to a SQLite database compatible with
RTLS and mzVault workflows. Records are checked
against their formula and precursor ion type before they are written.

Examples:
  # Convert with default settings
  formulakey convert --in library.msp --out library.db

  # Keep only protonated and sodiated CHNOPS compounds within 10 ppm
  formulakey convert --in library.msp --out library.db \
      --ion-types "[M+H]+,[M+Na]+" --constraints CHNOPS --ppm 10

  # Recalculate precursor m/z using 4 workers
  formulakey convert --in library.msp --out library.db --recalculate --threads 4`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&inputFile, "in", "i", "", "Input MSP or SPTXT file path (required)")
	convertCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output database file (required)")
	convertCmd.Flags().StringVar(&fragmentation, "fragmentation", "HCD", "Fragmentation mode: HCD or CID")
	convertCmd.Flags().StringVar(&massAnalyzer, "mass-analyzer", "FT", "Mass analyzer: FT or IT")
	convertCmd.Flags().IntVar(&topN, "top-n", 0, "Keep only top N most intense peaks (0 = no limit)")
	convertCmd.Flags().Float64Var(&cutoffPercent, "cutoff", 0, "Intensity cutoff as % of base peak (0 = no cutoff)")
	convertCmd.Flags().StringVar(&ionTypes, "ion-types", "", "Comma-separated precursor ion types to keep (e.g. '[M+H]+,[M+Na]+')")
	convertCmd.Flags().StringVar(&convertConstraints, "constraints", "", "Keep only formulas satisfying these element constraints")
	convertCmd.Flags().Float64Var(&ppmTolerance, "ppm", 0, "Max precursor m/z deviation in ppm (0 = no check)")
	convertCmd.Flags().BoolVar(&recalculate, "recalculate", false, "Replace precursor m/z by the value computed from formula and ion type")
	convertCmd.Flags().StringVar(&modsCSV, "mods", "", "CSV file with additional modifications (default: unimod_custom.csv if present)")
	convertCmd.Flags().IntVar(&threads, "threads", 1, "Number of worker threads")

	convertCmd.MarkFlagRequired("in")
	convertCmd.MarkFlagRequired("out")
}

// loadModDatabase returns the default modifications plus the custom CSV.
func loadModDatabase(e *env, calc *peptide.Calculator) (*peptide.ModDatabase, error) {
	modDB, err := peptide.DefaultModDatabase(calc.Registry())
	if err != nil {
		return nil, err
	}

	path := modsCSV
	if path == "" {
		if _, err := os.Stat("unimod_custom.csv"); err != nil {
			return modDB, nil
		}
		path = "unimod_custom.csv"
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open modifications: %w", err)
	}
	defer f.Close()
	if err := modDB.LoadFromCSV(f); err != nil {
		if modsCSV == "" {
			e.logger.Warn("failed to load unimod_custom.csv", slog.Any("error", err))
			return modDB, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return modDB, nil
}

func parseIonTypes(table *ion.Table, list string) ([]ion.PrecursorIonType, error) {
	var types []ion.PrecursorIonType
	for _, name := range ion.SplitAdducts(list) {
		typ, err := table.ByName(name)
		if err != nil {
			return nil, err
		}
		types = append(types, typ)
	}
	return types, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	if err := checkFileExists(inputFile); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(inputFile))
	if ext != ".msp" && ext != ".sptxt" {
		return fmt.Errorf("unsupported input format '%s', expected .msp or .sptxt", ext)
	}
	if threads < 1 {
		return fmt.Errorf("--threads must be at least 1, got %d", threads)
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	calc, err := peptide.NewCalculator(e.table)
	if err != nil {
		return err
	}
	modDB, err := loadModDatabase(e, calc)
	if err != nil {
		return err
	}

	filterConfig := &filter.Config{
		PPMTolerance:    ppmTolerance,
		Recalculate:     recalculate,
		TopN:            topN,
		IntensityCutoff: cutoffPercent,
		Calculator:      calc,
	}
	if filterConfig.Constraints, err = e.constraints(convertConstraints); err != nil {
		return err
	}
	if filterConfig.IonTypes, err = parseIonTypes(e.table, ionTypes); err != nil {
		return err
	}

	inFile, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer inFile.Close()

	var reader compoundReader
	if ext == ".sptxt" {
		reader, err = sptxt.NewReader(inFile, calc, modDB)
	} else {
		reader, err = msp.NewReader(inFile, e.table, modDB)
	}
	if err != nil {
		return err
	}
	reader.SetSource(filepath.Base(inputFile))

	writer, err := sqlite.NewWriter(outputFile, sqlite.Options{
		FragmentationMode: fragmentation,
		MassAnalyzer:      massAnalyzer,
		Calculator:        calc,
	})
	if err != nil {
		return fmt.Errorf("failed to create output database: %w", err)
	}
	defer writer.Close()

	e.logger.Info("converting",
		slog.String("in", inputFile),
		slog.String("out", outputFile),
		slog.Int("threads", threads))

	var rejected, invalid atomic.Int64
	compounds := make(chan *library.Compound, threads*4)
	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		defer close(compounds)
		for reader.Next() {
			select {
			case compounds <- reader.Compound():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := reader.Err(); err != nil {
			return fmt.Errorf("error reading input file: %w", err)
		}
		return nil
	})

	for i := 0; i < threads; i++ {
		g.Go(func() error {
			for c := range compounds {
				err := processCompound(filterConfig, writer, c)
				if err == nil {
					if n := writer.Count(); n%1000 == 0 {
						e.logger.Info("progress", slog.Int("written", n))
					}
					continue
				}
				switch {
				case errors.Is(err, filter.ErrRejected):
					rejected.Add(1)
					e.logger.Debug("compound rejected", slog.String("compound", c.Name()), slog.Any("reason", err))
				case isRecordError(err):
					invalid.Add(1)
					e.logger.Warn("invalid compound", slog.String("compound", c.Name()), slog.Int("line", c.Line), slog.Any("error", err))
				default:
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if err := writer.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize database: %w", err)
	}
	logCacheStats(e.logger)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConversion complete!\n")
	fmt.Fprintf(out, "Written:  %d compounds\n", writer.Count())
	if n := rejected.Load(); n > 0 {
		fmt.Fprintf(out, "Rejected: %d compounds (filters)\n", n)
	}
	if n := invalid.Load() + int64(reader.Skipped()); n > 0 {
		fmt.Fprintf(out, "Skipped:  %d compounds (invalid records)\n", n)
	}
	fmt.Fprintf(out, "Output:   %s\n", outputFile)

	return nil
}

// logCacheStats reports how the selection cache served the conversion.
func logCacheStats(logger *slog.Logger) {
	stats, err := chem.CacheStats(prometheus.DefaultGatherer)
	if err != nil {
		logger.Debug("selection cache stats unavailable", slog.Any("error", err))
		return
	}
	attrs := make([]any, 0, len(stats))
	for _, key := range slices.Sorted(maps.Keys(stats)) {
		attrs = append(attrs, slog.Float64(key, stats[key]))
	}
	logger.Debug("selection cache", attrs...)
}

// compoundReader is implemented by the MSP and SPTXT readers.
type compoundReader interface {
	SetSource(name string)
	Next() bool
	Compound() *library.Compound
	Skipped() int
	Err() error
}

// recordError marks errors that concern a single record only.
type recordError struct{ err error }

func (e *recordError) Error() string { return e.err.Error() }
func (e *recordError) Unwrap() error { return e.err }

func isRecordError(err error) bool {
	var re *recordError
	return errors.As(err, &re)
}

func processCompound(cfg *filter.Config, w *sqlite.Writer, c *library.Compound) error {
	filter.RemoveZeroIntensityPeaks(c)

	if err := cfg.Apply(c); err != nil {
		if errors.Is(err, filter.ErrRejected) {
			return err
		}
		return &recordError{err}
	}
	if err := c.Validate(); err != nil {
		return &recordError{err}
	}
	if err := w.WriteCompound(c); err != nil {
		return fmt.Errorf("failed to write compound %s: %w", c.Name(), err)
	}
	return nil
}
