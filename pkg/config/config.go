// Package config loads the YAML configuration shared by the formulakey
// commands.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
)

// Config is the top level configuration file.
type Config struct {
	Registry    RegistryConfig            `yaml:"registry"`
	Ions        IonsConfig                `yaml:"ions"`
	Constraints *chem.ConstraintsDocument `yaml:"constraints,omitempty"`
	Logging     LoggingConfig             `yaml:"logging"`
}

// RegistryConfig tunes the element registry and its selection cache.
type RegistryConfig struct {
	MaxSelectionSize int             `yaml:"maxSelectionSize" validate:"gte=1,lte=1024"`
	SelectionCap     int             `yaml:"selectionCap" validate:"gte=1"`
	MaxSelections    int             `yaml:"maxSelections" validate:"gte=1"`
	StarterAlphabet  []string        `yaml:"starterAlphabet" validate:"dive,required"`
	Elements         []ElementConfig `yaml:"elements,omitempty" validate:"dive"`
}

// ElementConfig adds an element that is missing from the built-in table,
// e.g. an isotope label such as "D".
type ElementConfig struct {
	Symbol  string  `yaml:"symbol" validate:"required"`
	Name    string  `yaml:"name"`
	Mass    float64 `yaml:"mass" validate:"gt=0"`
	Valence int     `yaml:"valence" validate:"gte=0"`
}

// IonsConfig lists the common ion types as comma separated names.
type IonsConfig struct {
	Positive string `yaml:"positive" validate:"required"`
	Negative string `yaml:"negative" validate:"required"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

var validate = validator.New()

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			MaxSelectionSize: chem.DefaultMaxSelectionSize,
			SelectionCap:     chem.DefaultSelectionCap,
			MaxSelections:    chem.DefaultMaxSelections,
			StarterAlphabet:  append([]string(nil), chem.DefaultStarterAlphabet...),
		},
		Ions: IonsConfig{
			Positive: ion.DefaultPositiveAdducts,
			Negative: ion.DefaultNegativeAdducts,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file. Missing keys keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags of the whole configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger builds the configured slog logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewRegistry builds an element registry with the built-in elements plus
// the configured extra elements.
func (c *Config) NewRegistry(logger *slog.Logger) (*chem.Registry, error) {
	r, err := chem.NewDefaultRegistry(
		chem.WithLogger(logger),
		chem.WithMaxSelectionSize(c.Registry.MaxSelectionSize),
		chem.WithSelectionCap(c.Registry.SelectionCap),
		chem.WithMaxSelections(c.Registry.MaxSelections),
		chem.WithStarterAlphabet(c.Registry.StarterAlphabet...),
	)
	if err != nil {
		return nil, err
	}
	for _, e := range c.Registry.Elements {
		if _, err := r.AddElement(e.Symbol, e.Name, e.Mass, e.Valence); err != nil {
			return nil, fmt.Errorf("failed to add element %s: %w", e.Symbol, err)
		}
	}
	return r, nil
}

// NewIonTable builds the ion table of r from the configured adduct lists.
func (c *Config) NewIonTable(r *chem.Registry, logger *slog.Logger) (*ion.Table, error) {
	return ion.NewTable(r,
		ion.WithLogger(logger),
		ion.WithPositiveAdducts(ion.SplitAdducts(c.Ions.Positive)...),
		ion.WithNegativeAdducts(ion.SplitAdducts(c.Ions.Negative)...),
	)
}

// NewConstraints returns the configured formula constraints, or nil if the
// configuration has none.
func (c *Config) NewConstraints(r *chem.Registry) (*chem.FormulaConstraints, error) {
	if c.Constraints == nil {
		return nil, nil
	}
	if err := validate.Struct(c.Constraints); err != nil {
		return nil, fmt.Errorf("invalid constraints: %w", err)
	}
	return r.ConstraintsFromDocument(*c.Constraints)
}
