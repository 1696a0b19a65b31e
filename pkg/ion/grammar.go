package ion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
)

var (
	ionTokenPattern = regexp.MustCompile(`[\[\]()+\-]`)
	multimerPattern = regexp.MustCompile(`(?:^|\[)\s*(\d+)M(?:\s*[+-]|]|$)`)
)

// abbreviations are solvent and acid names accepted in ion notation.
var abbreviations = map[string]string{
	"ACN":  "CH3CN",
	"FA":   "H2CO2",
	"MEOH": "CH4O",
	"IPA":  "C3H8O",
	"DMSO": "C2H6OS",
	"HAC":  "C2H4O2",
	"TFA":  "CF3CO2H",
}

type fragment struct {
	formula chem.Formula
	adduct  bool
	removed bool
}

func canonicalName(name string) string {
	return strings.Join(strings.Fields(name), "")
}

func notationError(name string, err error, format string, args ...any) error {
	return &chem.FormulaError{Op: "parse ion type", Input: name, Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)}
}

func tokenize(name string) []string {
	var tokens []string
	last := 0
	for _, loc := range ionTokenPattern.FindAllStringIndex(name, -1) {
		if loc[0] > last {
			tokens = append(tokens, name[last:loc[0]])
		}
		tokens = append(tokens, name[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(name) {
		tokens = append(tokens, name[last:])
	}
	return tokens
}

// parse reads ion notation such as "[M+H]+", "[M-H2O+H]+" or "[M+ACN+H]+".
// It must be called with mu held for writing because unknown single element
// adducts are registered as new ion modes.
func (t *Table) parse(name string) (PrecursorIonType, error) {
	text := canonicalName(name)
	if text == "" {
		return PrecursorIonType{}, notationError(name, chem.ErrMalformedFormulaText, "empty ion type")
	}
	if multimerPattern.MatchString(text) {
		return PrecursorIonType{}, notationError(name, chem.ErrUnsupportedIonNotation, "multimers are not supported")
	}

	var fragments []fragment
	add := true
	number := 1
	for _, token := range tokenize(text) {
		switch c := token[0]; {
		case c == '(':
			if number != 1 {
				return PrecursorIonType{}, notationError(name, chem.ErrUnsupportedIonNotation, "multiplier before a group")
			}
		case c == ')' || c == '[' || c == ']':
		case c == '+' || c == '-':
			if number != 1 {
				return PrecursorIonType{}, notationError(name, chem.ErrUnsupportedIonNotation, "multiple charges are not supported")
			}
			add = c == '+'
		case token == "M":
			if !add {
				return PrecursorIonType{}, notationError(name, chem.ErrMalformedFormulaText, "molecule must not be subtracted")
			}
		default:
			digits := leadingDigits(token)
			if digits == len(token) {
				n, err := strconv.Atoi(token)
				if err != nil {
					return PrecursorIonType{}, notationError(name, chem.ErrRangeExceeded, "multiplier %s", token)
				}
				number = n
				continue
			}
			if digits > 0 {
				if number != 1 {
					return PrecursorIonType{}, notationError(name, chem.ErrMalformedFormulaText, "nested multiplier")
				}
				n, err := strconv.Atoi(token[:digits])
				if err != nil {
					return PrecursorIonType{}, notationError(name, chem.ErrRangeExceeded, "multiplier %s", token[:digits])
				}
				number = n
				token = token[digits:]
			}

			f, err := t.parseFragment(token, number)
			if err != nil {
				return PrecursorIonType{}, fmt.Errorf("ion type %q: %w", name, err)
			}
			fragments = append(fragments, fragment{formula: f, adduct: add})
			add = true
			number = 1
		}
	}

	charge := -1
	if add {
		charge = 1
	}
	return t.resolve(name, charge, fragments)
}

func (t *Table) parseFragment(token string, number int) (chem.Formula, error) {
	if expanded, ok := abbreviations[strings.ToUpper(token)]; ok {
		token = expanded
	}
	f, err := t.registry.Parse(token)
	if err != nil {
		return chem.Formula{}, err
	}
	if number != 1 {
		return f.Multiply(number)
	}
	return f, nil
}

// resolve picks the ion mode for the parsed fragments. The last fragment is
// tried first; an exact match with a known mode wins over a mode that is
// only contained in the fragment, in which case the rest stays an adduct or
// in-source fragment.
func (t *Table) resolve(name string, charge int, fragments []fragment) (PrecursorIonType, error) {
	modes := t.modes(charge)
	var used *Ionization

	for i := len(fragments) - 1; i >= 0 && used == nil; i-- {
		fr := &fragments[i]
		if fr.adduct {
			used = t.matchAdduct(fr, modes, charge)
		} else {
			used = matchLoss(fr, modes)
		}
	}

	if used == nil {
		switch {
		case charge < 0 && countFragments(fragments, true) > 0:
			fragments = append(fragments, fragment{formula: t.hydrogen, adduct: true})
			used = &t.deprotonation
		case charge > 0 && countFragments(fragments, false) > 0:
			fragments = append(fragments, fragment{formula: t.hydrogen, adduct: false})
			used = &t.protonation
		}
	}

	var adduct, inSource chem.Formula
	for _, fr := range fragments {
		if fr.removed {
			continue
		}
		var err error
		if fr.adduct {
			adduct, err = adduct.Add(fr.formula)
		} else {
			inSource, err = inSource.Add(fr.formula)
		}
		if err != nil {
			return PrecursorIonType{}, fmt.Errorf("ion type %q: %w", name, err)
		}
	}

	if used == nil {
		if adduct.IsEmpty() && inSource.IsEmpty() {
			return IntrinsicallyChargedType(charge), nil
		}
		return PrecursorIonType{}, notationError(name, chem.ErrMalformedFormulaText, "no ion mode matches")
	}
	return New(*used, inSource, adduct)
}

func (t *Table) matchAdduct(fr *fragment, modes []Ionization, charge int) *Ionization {
	for i := range modes {
		if atoms := modes[i].Atoms(); atoms.AtomCount() > 0 && atoms.Equal(fr.formula) {
			fr.removed = true
			return &modes[i]
		}
	}
	for i := range modes {
		if atoms := modes[i].Atoms(); atoms.AtomCount() > 0 && fr.formula.IsSubtractable(atoms) {
			rest, err := fr.formula.Subtract(atoms)
			if err != nil {
				continue
			}
			fr.formula = rest
			return &modes[i]
		}
	}
	if fr.formula.NumberOfElements() == 1 {
		mode := NewAdduct(charge, "[M + "+fr.formula.String()+"]"+chargeSign(charge), fr.formula)
		t.addModeLocked(mode)
		fr.removed = true
		return &mode
	}
	return nil
}

func matchLoss(fr *fragment, modes []Ionization) *Ionization {
	for i := range modes {
		if atoms := modes[i].Atoms(); atoms.AtomCount() < 0 {
			if loss, err := atoms.Negate(); err == nil && loss.Equal(fr.formula) {
				fr.removed = true
				return &modes[i]
			}
		}
	}
	for i := range modes {
		if atoms := modes[i].Atoms(); atoms.AtomCount() < 0 {
			loss, err := atoms.Negate()
			if err != nil || !fr.formula.IsSubtractable(loss) {
				continue
			}
			if rest, err := fr.formula.Subtract(loss); err == nil {
				fr.formula = rest
				return &modes[i]
			}
		}
	}
	return nil
}

func countFragments(fragments []fragment, adduct bool) int {
	n := 0
	for _, fr := range fragments {
		if fr.adduct == adduct && !fr.removed {
			n++
		}
	}
	return n
}

func leadingDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}
