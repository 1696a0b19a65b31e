// Package sqlite provides SQLite database writing for spectral libraries
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/FormulaKey/pkg/library"
	"github.com/ChrisMcGann/FormulaKey/pkg/peptide"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	// Date format for MaintenanceTable (space-separated)
	maintenanceDateFormat = "2006 01 02"
)

// Options describe how the spectra were acquired.
type Options struct {
	FragmentationMode string
	MassAnalyzer      string
	Calculator        *peptide.Calculator // required for peptide records
}

// Writer handles writing compounds to SQLite database files. It is safe for
// concurrent use.
type Writer struct {
	db           *sql.DB
	outputPath   string
	opts         Options
	compoundStmt *sql.Stmt
	spectrumStmt *sql.Stmt

	mu         sync.Mutex
	compoundID int
	closed     bool
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string, opts Options) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.FragmentationMode == "" {
		opts.FragmentationMode = "HCD"
	}
	if opts.MassAnalyzer == "" {
		opts.MassAnalyzer = "FT"
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		opts:       opts,
		compoundID: 1,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS CompoundTable (
		CompoundId INTEGER PRIMARY KEY,
		Formula TEXT,
		Name TEXT,
		Synonyms BLOB_TEXT,
		Tag TEXT,
		Sequence TEXT,
		CASId TEXT,
		ChemSpiderId TEXT,
		HMDBId TEXT,
		KEGGId TEXT,
		PubChemId TEXT,
		Structure BLOB_TEXT,
		mzCloudId INTEGER,
		CompoundClass TEXT,
		SmilesDescription TEXT,
		InChiKey TEXT
	);

	CREATE TABLE IF NOT EXISTS SpectrumTable (
		SpectrumId INTEGER PRIMARY KEY,
		CompoundId INTEGER REFERENCES CompoundTable(CompoundId),
		mzCloudURL TEXT,
		ScanFilter TEXT,
		RetentionTime DOUBLE,
		ScanNumber INTEGER,
		PrecursorMass DOUBLE,
		NeutralMass DOUBLE,
		CollisionEnergy DOUBLE,
		Polarity TEXT,
		FragmentationMode TEXT,
		IonizationMode TEXT,
		MassAnalyzer TEXT,
		InstrumentName TEXT,
		InstrumentOperator TEXT,
		RawFileURL TEXT,
		blobMass BLOB,
		blobIntensity BLOB,
		blobAccuracy BLOB,
		blobResolution BLOB,
		blobNoises BLOB,
		blobFlags BLOB,
		blobTopPeaks BLOB,
		Version INTEGER,
		CreationDate TEXT,
		Curator TEXT,
		CurationType TEXT,
		PrecursorIonType TEXT,
		Accession TEXT
	);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		LastModifiedDate TEXT,
		Description TEXT,
		Company TEXT,
		ReadOnly BOOL,
		UserAccess TEXT,
		PartialEdits BOOL
	);

	CREATE TABLE IF NOT EXISTS MaintenanceTable (
		CreationDate TEXT,
		NoofCompoundsModified INTEGER,
		Description TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.compoundStmt, err = w.db.Prepare(`
		INSERT INTO CompoundTable (
			CompoundId, Formula, Name, Synonyms, Tag, Sequence,
			CASId, ChemSpiderId, HMDBId, KEGGId, PubChemId,
			Structure, mzCloudId, CompoundClass, SmilesDescription, InChiKey
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare compound statement: %w", err)
	}

	w.spectrumStmt, err = w.db.Prepare(`
		INSERT INTO SpectrumTable (
			SpectrumId, CompoundId, mzCloudURL, ScanFilter, RetentionTime,
			ScanNumber, PrecursorMass, NeutralMass, CollisionEnergy, Polarity,
			FragmentationMode, IonizationMode, MassAnalyzer, InstrumentName,
			InstrumentOperator, RawFileURL, blobMass, blobIntensity,
			blobAccuracy, blobResolution, blobNoises, blobFlags,
			blobTopPeaks, Version, CreationDate, Curator, CurationType,
			PrecursorIonType, Accession
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spectrum statement: %w", err)
	}

	return nil
}

// formulaOf returns the formula text of c. Peptides with modifications known
// only by mass have no formula.
func (w *Writer) formulaOf(c *library.Compound) (string, error) {
	if !c.IsPeptide() {
		return c.Formula.String(), nil
	}
	f, err := w.opts.Calculator.Formula(c.Sequence, c.Modifications)
	if errors.Is(err, peptide.ErrNoComposition) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return f.String(), nil
}

// ionTypeOf returns the precursor ion type name, "[M+2H]2+" style for peptides.
func ionTypeOf(c *library.Compound) string {
	if !c.IsPeptide() {
		return c.IonType.String()
	}
	if c.Charge == 1 {
		return "[M+H]+"
	}
	return fmt.Sprintf("[M+%dH]%d+", c.Charge, c.Charge)
}

// WriteCompound writes a single compound with its spectrum to the database
func (w *Writer) WriteCompound(c *library.Compound) error {
	if !c.ArePeaksSorted() {
		c.SortPeaks()
	}
	if c.IsPeptide() && w.opts.Calculator == nil {
		return fmt.Errorf("compound %s: peptide records need a calculator", c.Name())
	}

	formula, err := w.formulaOf(c)
	if err != nil {
		return fmt.Errorf("compound %s: %w", c.Name(), err)
	}
	neutralMass, err := c.NeutralMass(w.opts.Calculator)
	if err != nil {
		return err
	}

	tag := ""
	if mods := c.ModString(); mods != "" {
		tag = fmt.Sprintf("mods:%s", mods)
	}

	var rt interface{} = nil
	if c.RetentionTime != nil {
		rt = *c.RetentionTime
	}
	var ce interface{} = nil
	if c.CollisionEnergy != nil {
		ce = *c.CollisionEnergy
	}

	// Encode peaks as binary blobs (little-endian float64)
	mzBlob := encodePeaksFloat64(c.Peaks, true)
	intBlob := encodePeaksFloat64(c.Peaks, false)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("database %s is closed", w.outputPath)
	}

	_, err = w.compoundStmt.Exec(
		w.compoundID,    // CompoundId
		formula,         // Formula
		c.Name(),        // Name
		"",              // Synonyms
		tag,             // Tag
		c.Sequence,      // Sequence
		"",              // CASId
		"",              // ChemSpiderId
		"",              // HMDBId
		"",              // KEGGId
		"",              // PubChemId
		"",              // Structure
		nil,             // mzCloudId
		c.CompoundClass, // CompoundClass
		"",              // SmilesDescription
		c.InChIKey,      // InChiKey
	)
	if err != nil {
		return fmt.Errorf("failed to insert compound: %w", err)
	}

	_, err = w.spectrumStmt.Exec(
		w.compoundID,             // SpectrumId (same as CompoundId for 1:1 mapping)
		w.compoundID,             // CompoundId
		"",                       // mzCloudURL
		"",                       // ScanFilter
		rt,                       // RetentionTime
		0,                        // ScanNumber
		c.PrecursorMZ,            // PrecursorMass
		neutralMass,              // NeutralMass
		ce,                       // CollisionEnergy
		c.Polarity(),             // Polarity
		w.opts.FragmentationMode, // FragmentationMode
		"ESI",                    // IonizationMode
		w.opts.MassAnalyzer,      // MassAnalyzer
		"",                       // InstrumentName
		"",                       // InstrumentOperator
		"",                       // RawFileURL
		mzBlob,                   // blobMass
		intBlob,                  // blobIntensity
		nil,                      // blobAccuracy
		nil,                      // blobResolution
		nil,                      // blobNoises
		nil,                      // blobFlags
		nil,                      // blobTopPeaks
		nil,                      // Version
		nil,                      // CreationDate
		"",                       // Curator
		"",                       // CurationType
		ionTypeOf(c),             // PrecursorIonType
		uuid.NewString(),         // Accession
	)
	if err != nil {
		return fmt.Errorf("failed to insert spectrum: %w", err)
	}

	w.compoundID++
	return nil
}

// Count returns the number of compounds written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.compoundID - 1
}

// encodePeaksFloat64 encodes peak data as little-endian float64 blob
func encodePeaksFloat64(peaks []library.Peak, useMZ bool) []byte {
	buf := make([]byte, len(peaks)*8)
	for i, peak := range peaks {
		var value float64
		if useMZ {
			value = peak.MZ
		} else {
			value = peak.Intensity
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return buf
}

// Finalize writes the header and maintenance tables and closes the database.
// Calling it again is a no-op.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	now := time.Now()
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, LastModifiedDate, Description, Company, ReadOnly, UserAccess, PartialEdits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, 5, now.Format(headerDateFormat), now.Format(headerDateFormat), "", "", false, "", false)
	if err != nil {
		w.db.Close()
		return fmt.Errorf("failed to insert header: %w", err)
	}

	_, err = w.db.Exec(`
		INSERT INTO MaintenanceTable (CreationDate, NoofCompoundsModified, Description)
		VALUES (?, ?, ?)
	`, now.Format(maintenanceDateFormat), w.compoundID-1, "")
	if err != nil {
		w.db.Close()
		return fmt.Errorf("failed to insert maintenance: %w", err)
	}

	if w.compoundStmt != nil {
		w.compoundStmt.Close()
	}
	if w.spectrumStmt != nil {
		w.spectrumStmt.Close()
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}
