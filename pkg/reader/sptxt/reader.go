// Package sptxt provides streaming readers for SPTXT (SpectraST) format spectral libraries
package sptxt

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/FormulaKey/pkg/library"
	"github.com/ChrisMcGann/FormulaKey/pkg/peptide"
)

// inlineMod matches "C[160]" or "n[305]" in a SpectraST peptide name.
var inlineMod = regexp.MustCompile(`([A-Za-z])\[(\d+(?:\.\d+)?)\]`)

// Reader provides streaming access to SPTXT format files
type Reader struct {
	scanner *bufio.Scanner
	calc    *peptide.Calculator
	modDB   *peptide.ModDatabase
	logger  *slog.Logger
	source  string

	lineNum int
	current *library.Compound
	skipped int
	err     error
}

// NewReader creates a new SPTXT reader. A nil modDB means the default
// modifications.
func NewReader(r io.Reader, calc *peptide.Calculator, modDB *peptide.ModDatabase) (*Reader, error) {
	if modDB == nil {
		db, err := peptide.DefaultModDatabase(calc.Registry())
		if err != nil {
			return nil, err
		}
		modDB = db
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{
		scanner: scanner,
		calc:    calc,
		modDB:   modDB,
		logger:  calc.Registry().Logger(),
	}, nil
}

// SetSource records the file name on every compound read.
func (r *Reader) SetSource(name string) { r.source = name }

// Next advances to the next spectrum. Returns false when no more spectra or error.
// Peptides with residues outside the amino acid table are logged and skipped.
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

// Compound returns the current peptide spectrum
func (r *Reader) Compound() *library.Compound {
	return r.current
}

// Skipped returns the number of entries skipped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) readCompound() (c *library.Compound, ok bool, err error) {
	c = &library.Compound{SourceFile: r.source}
	ok = true

	started := false
	numPeaks := -1

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "###") {
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

		switch key {
		case "Name":
			c.Title = value
			if err := r.parseName(c, value); err != nil {
				return nil, false, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			if strings.Trim(c.Sequence, "ACDEFGHIKLMNPQRSTVWY") != "" {
				r.logger.Warn("skipping peptide with unknown residues", slog.String("name", value), slog.Int("line", r.lineNum))
				ok = false
			}
		case "PrecursorMZ":
			if mz, err := strconv.ParseFloat(value, 64); err == nil {
				c.PrecursorMZ = mz
			}
		case "Comment":
			r.parseComment(c, value)
		case "NumPeaks":
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
		return nil, false, fmt.Errorf("line %d: entry at line %d is incomplete", r.lineNum, c.Line)
	}
	return nil, false, io.EOF
}

// parseName extracts sequence, charge, and modifications from Name field
// Format: "n[305]AAAAQDEITGDGTTTVVC[160]LVGELLR/3"
func (r *Reader) parseName(c *library.Compound, name string) error {
	rawSeq, chargeStr, found := strings.Cut(name, "/")
	if !found {
		return fmt.Errorf("invalid name format '%s', expected 'SEQUENCE/CHARGE'", name)
	}
	charge, err := strconv.Atoi(chargeStr)
	if err != nil {
		return fmt.Errorf("invalid charge in name '%s': %w", name, err)
	}
	c.Charge = charge

	var seq strings.Builder
	lastIdx := 0
	for _, m := range inlineMod.FindAllStringSubmatchIndex(rawSeq, -1) {
		seq.WriteString(rawSeq[lastIdx:m[0]])
		aa := rawSeq[m[2]:m[3]]
		total, err := strconv.ParseFloat(rawSeq[m[4]:m[5]], 64)
		if err != nil {
			return fmt.Errorf("invalid modification mass in '%s': %w", name, err)
		}

		position := -1
		base := 1 // N-terminal hydrogen
		if aa != "n" {
			position = seq.Len()
			seq.WriteString(aa)
			if f, ok := r.calc.Residue(rune(aa[0])); ok {
				base = f.NominalMass()
			}
		}
		c.Modifications = append(c.Modifications, r.inlineModification(int(total+0.5)-base, position))
		lastIdx = m[1]
	}
	seq.WriteString(rawSeq[lastIdx:])
	c.Sequence = seq.String()
	return nil
}

// inlineModification resolves the nominal mass shift of an inline
// modification. Ambiguous shifts keep their nominal mass and no composition.
func (r *Reader) inlineModification(shift, position int) peptide.Modification {
	if name, entry, ok := r.modDB.ByNominalMass(shift); ok {
		return peptide.Modification{Name: name, Mass: entry.Mass, Position: position, Composition: entry.Composition}
	}
	return peptide.Modification{Name: strconv.Itoa(shift), Mass: float64(shift), Position: position}
}

// parseComment extracts metadata from Comment field
func (r *Reader) parseComment(c *library.Compound, comment string) {
	for _, field := range strings.Fields(comment) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}

		switch key {
		case "Parent":
			if mz, err := strconv.ParseFloat(value, 64); err == nil && c.PrecursorMZ == 0 {
				c.PrecursorMZ = mz
			}
		case "CollisionEnergy":
			if ce, err := strconv.ParseFloat(value, 64); err == nil {
				c.CollisionEnergy = &ce
			}
		case "RetentionTime":
			// May be comma-separated list, take first value
			first, _, _ := strings.Cut(value, ",")
			if rt, err := strconv.ParseFloat(first, 64); err == nil {
				c.RetentionTime = &rt
			}
		case "Mods":
			r.parseMods(c, value)
		}
	}
}

// parseMods names the modifications listed in the Mods field.
// Format: "2/-1,A,TMTPro/17,C,Carbamidomethyl"
func (r *Reader) parseMods(c *library.Compound, mods string) {
	parts := strings.Split(mods, "/")
	for _, part := range parts[1:] {
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			continue
		}
		pos, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		name := fields[2]
		entry, ok := r.modDB.Get(name)
		if !ok {
			r.logger.Warn("unknown modification", slog.String("modification", name), slog.Int("line", r.lineNum))
			continue
		}

		mod := peptide.Modification{Name: name, Mass: entry.Mass, Position: pos, Composition: entry.Composition}
		replaced := false
		for i := range c.Modifications {
			if c.Modifications[i].Position == pos {
				c.Modifications[i] = mod
				replaced = true
				break
			}
		}
		if !replaced {
			c.Modifications = append(c.Modifications, mod)
		}
	}
}

// parsePeak parses a single peak line
// Format: "mz\tintensity\tannotation\t..."
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
		annotation := fields[2]
		// Remove ppm info if present (format: "y3/0.5ppm")
		if idx := strings.Index(annotation, "/"); idx > 0 {
			annotation = annotation[:idx]
		}
		peak.Annotation = annotation
	}

	return peak, nil
}
