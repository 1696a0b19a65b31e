// Package msp provides streaming readers for MSP format spectral libraries
// of small molecules (NIST, MoNA) and peptides (Prosit).
package msp

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
	"github.com/ChrisMcGann/FormulaKey/pkg/library"
	"github.com/ChrisMcGann/FormulaKey/pkg/peptide"
)

// Reader provides streaming access to MSP format files
type Reader struct {
	scanner  *bufio.Scanner
	registry *chem.Registry
	table    *ion.Table
	modDB    *peptide.ModDatabase
	logger   *slog.Logger
	source   string

	lineNum int
	current *library.Compound
	skipped int
	err     error
}

// NewReader creates a new MSP reader. Formulas and ion types are parsed with
// the registry of table; a nil modDB means the default modifications.
func NewReader(r io.Reader, table *ion.Table, modDB *peptide.ModDatabase) (*Reader, error) {
	registry := table.Registry()
	if modDB == nil {
		db, err := peptide.DefaultModDatabase(registry)
		if err != nil {
			return nil, err
		}
		modDB = db
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{
		scanner:  scanner,
		registry: registry,
		table:    table,
		modDB:    modDB,
		logger:   registry.Logger(),
	}, nil
}

// SetSource records the file name on every compound read.
func (r *Reader) SetSource(name string) { r.source = name }

// Next advances to the next compound. Returns false when no more compounds or error.
// Records whose formula or ion type cannot be parsed are logged and skipped.
func (r *Reader) Next() bool {
	r.current = nil

	for {
		c, ok, err := r.readCompound()
		if err != nil {
			if err != io.EOF {
				r.err = err
			}
			return false
		}
		if ok {
			r.current = c
			return true
		}
		r.skipped++
	}
}

// Compound returns the current compound
func (r *Reader) Compound() *library.Compound {
	return r.current
}

// Skipped returns the number of records skipped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// header normalizes a header key: "Precursor_type", "PRECURSORTYPE" and
// "Precursor type" all become "precursortype".
func header(key string) string {
	return strings.NewReplacer("_", "", " ", "").Replace(strings.ToLower(key))
}

// readCompound reads one record. ok is false for records that were skipped.
func (r *Reader) readCompound() (c *library.Compound, ok bool, err error) {
	c = &library.Compound{SourceFile: r.source}
	ok = true

	started := false
	numPeaks := -1

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		if line == "" {
			if started && numPeaks < 0 {
				return nil, false, fmt.Errorf("line %d: record ends before Num Peaks", r.lineNum)
			}
			continue
		}

		if numPeaks >= 0 {
			peak, err := parsePeak(line)
			if err != nil {
				return nil, false, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			c.Peaks = append(c.Peaks, peak)
			if len(c.Peaks) == numPeaks {
				return c, ok, nil
			}
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, false, fmt.Errorf("line %d: expected 'Key: value', got %q", r.lineNum, line)
		}
		if !started {
			started = true
			c.Line = r.lineNum
		}
		value = strings.TrimSpace(value)

		switch header(key) {
		case "name":
			c.Title = value
			if seq, charge, isPeptide := splitPeptideName(value); isPeptide {
				c.Sequence, c.Charge = seq, charge
			}
		case "formula":
			f, parsed := r.registry.ParseOrNull(value)
			if !parsed {
				ok = false
				continue
			}
			c.Formula = f
		case "precursortype", "adduct":
			typ, parsed := r.table.ByNameOrNull(value)
			if !parsed {
				ok = false
				continue
			}
			c.IonType = typ
		case "precursormz", "parent":
			mz, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, false, fmt.Errorf("line %d: invalid precursor m/z: %w", r.lineNum, err)
			}
			c.PrecursorMZ = mz
		case "ionmode":
			c.IonMode = value
		case "charge":
			if n, err := strconv.Atoi(strings.TrimSuffix(value, "+")); err == nil {
				c.Charge = n
			}
		case "collisionenergy":
			if ce, err := strconv.ParseFloat(strings.Fields(value + " ")[0], 64); err == nil {
				c.CollisionEnergy = &ce
			}
		case "retentiontime", "rt":
			if rt, err := strconv.ParseFloat(strings.Fields(value + " ")[0], 64); err == nil {
				c.RetentionTime = &rt
			}
		case "inchikey":
			c.InChIKey = value
		case "comment":
			r.parseComment(c, value)
		case "numpeaks":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, false, fmt.Errorf("line %d: invalid num peaks %q", r.lineNum, value)
			}
			numPeaks = n
			if n == 0 {
				return c, ok, nil
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, false, err
	}
	if started {
		if numPeaks < 0 {
			return nil, false, fmt.Errorf("line %d: record at line %d has no Num Peaks", r.lineNum, c.Line)
		}
		return nil, false, fmt.Errorf("line %d: record at line %d has %d of %d peaks", r.lineNum, c.Line, len(c.Peaks), numPeaks)
	}
	return nil, false, io.EOF
}

// splitPeptideName splits a Prosit name "SEQUENCE/CHARGE".
func splitPeptideName(name string) (string, int, bool) {
	seq, chargeStr, found := strings.Cut(name, "/")
	if !found || seq == "" || strings.Trim(seq, "ACDEFGHIKLMNPQRSTVWY") != "" {
		return "", 0, false
	}
	charge, err := strconv.Atoi(chargeStr)
	if err != nil {
		return "", 0, false
	}
	return seq, charge, true
}

// parseComment extracts metadata from Comment field
// Example: Parent=414.71 Collision_energy=35 Mods=1/-1,R,TMT_Pro ModString=SEQUENCE//TMT_Pro@R-1/4 iRT=61.01
func (r *Reader) parseComment(c *library.Compound, comment string) {
	for _, field := range strings.Fields(comment) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}

		switch header(key) {
		case "parent":
			if mz, err := strconv.ParseFloat(value, 64); err == nil && c.PrecursorMZ == 0 {
				c.PrecursorMZ = mz
			}
		case "collisionenergy":
			if ce, err := strconv.ParseFloat(value, 64); err == nil {
				c.CollisionEnergy = &ce
			}
		case "irt", "retentiontime":
			if rt, err := strconv.ParseFloat(value, 64); err == nil {
				c.RetentionTime = &rt
			}
		case "modstring":
			r.parseModString(c, value)
		}
	}
}

// parseModString parses modification information from ModString field
// Format: SEQUENCE//Mod@Pos;Mod@Pos/Charge
func (r *Reader) parseModString(c *library.Compound, modString string) {
	_, modPart, found := strings.Cut(modString, "//")
	if !found || modPart == "" {
		return
	}
	modPart, _, _ = strings.Cut(modPart, "/")

	mods, err := r.modDB.ParseModString(modPart, c.Sequence)
	if err != nil {
		r.logger.Warn("ignoring modifications", slog.String("compound", c.Name()), slog.Int("line", r.lineNum), slog.Any("error", err))
		return
	}
	c.Modifications = mods
}

// parsePeak parses a single peak line (format: "mz\tintensity\t\"annotation\"")
func parsePeak(line string) (library.Peak, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return library.Peak{}, fmt.Errorf("invalid peak format, expected at least 2 fields")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return library.Peak{}, fmt.Errorf("invalid m/z value: %w", err)
	}

	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return library.Peak{}, fmt.Errorf("invalid intensity value: %w", err)
	}

	peak := library.Peak{
		MZ:        mz,
		Intensity: intensity,
	}

	if len(fields) >= 3 {
		annotation := strings.Trim(strings.Join(fields[2:], " "), "\"")
		if idx := strings.Index(annotation, "/"); idx > 0 {
			annotation = annotation[:idx]
		}
		peak.Annotation = annotation
	}

	return peak, nil
}
