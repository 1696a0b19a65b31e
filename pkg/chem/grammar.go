package chem

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseFunc tokenizes formula text and calls visit for every element token
// with its amount. Text without parentheses is visited token by token in
// textual order without merging repeated elements; an optional leading
// number multiplies every amount. Parenthesized groups are expanded and
// emitted when their outermost group closes.
func (r *Registry) ParseFunc(text string, visit func(e *Element, amount int)) error {
	text = strings.Join(strings.Fields(text), "")
	if text == "" {
		return nil
	}
	if strings.ContainsAny(text, "()") {
		return r.parseStacked(text, visit)
	}
	return r.parseUnstacked(text, visit)
}

func (r *Registry) parseUnstacked(text string, visit func(*Element, int)) error {
	multiplier := 1
	pos := leadingDigits(text)
	if pos > 0 {
		m, err := parseAmount(text[:pos])
		if err != nil {
			return newError("parse", text, err)
		}
		multiplier = m
	}

	for _, loc := range r.Pattern().FindAllStringSubmatchIndex(text, -1) {
		if loc[0] != pos {
			return gapError(text, pos, loc[0])
		}
		if loc[2] < 0 || text[loc[2]:loc[3]] == ")" {
			return newError("parse", text, ErrMalformedFormulaText)
		}
		e, _ := r.Element(text[loc[2]:loc[3]])
		count, err := tokenCount(text, loc)
		if err != nil {
			return newError("parse", text, err)
		}
		amount, err := scaleAmount(count, multiplier)
		if err != nil {
			return newError("parse", text, err)
		}
		visit(e, amount)
		pos = loc[1]
	}
	if pos != len(text) {
		return gapError(text, pos, len(text))
	}
	return nil
}

type groupFrame struct {
	order   []*Element
	amounts map[*Element]int
}

func newGroupFrame() *groupFrame {
	return &groupFrame{amounts: make(map[*Element]int)}
}

func (g *groupFrame) add(e *Element, n int) error {
	v, ok := g.amounts[e]
	if !ok {
		g.order = append(g.order, e)
	}
	v += n
	if v > math.MaxInt16 || v < math.MinInt16 {
		return ErrRangeExceeded
	}
	g.amounts[e] = v
	return nil
}

func (r *Registry) parseStacked(text string, visit func(*Element, int)) error {
	if leadingDigits(text) > 0 {
		return newError("parse", text, fmt.Errorf("%w: multiplier before group", ErrMalformedFormulaText))
	}

	var stack []*groupFrame
	pos := 0
	for _, loc := range r.Pattern().FindAllStringSubmatchIndex(text, -1) {
		if loc[0] != pos {
			return gapError(text, pos, loc[0])
		}
		pos = loc[1]

		if loc[2] < 0 {
			stack = append(stack, newGroupFrame())
			continue
		}
		count, err := tokenCount(text, loc)
		if err != nil {
			return newError("parse", text, err)
		}

		token := text[loc[2]:loc[3]]
		if token == ")" {
			if len(stack) == 0 {
				return newError("parse", text, fmt.Errorf("%w: unbalanced parentheses", ErrMalformedFormulaText))
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, e := range top.order {
				amount, err := scaleAmount(top.amounts[e], count)
				if err != nil {
					return newError("parse", text, err)
				}
				if len(stack) == 0 {
					visit(e, amount)
				} else if err := stack[len(stack)-1].add(e, amount); err != nil {
					return newError("parse", text, err)
				}
			}
			continue
		}

		e, _ := r.Element(token)
		if len(stack) == 0 {
			visit(e, count)
		} else if err := stack[len(stack)-1].add(e, count); err != nil {
			return newError("parse", text, err)
		}
	}

	if pos != len(text) {
		return gapError(text, pos, len(text))
	}
	if len(stack) > 0 {
		return newError("parse", text, fmt.Errorf("%w: unbalanced parentheses", ErrMalformedFormulaText))
	}
	return nil
}

// Parse parses formula text into a Formula.
func (r *Registry) Parse(text string) (Formula, error) {
	amounts := make(map[*Element]int)
	if err := r.ParseFunc(text, func(e *Element, n int) { amounts[e] += n }); err != nil {
		return Formula{}, err
	}
	f, err := r.fromMap(amounts)
	if err != nil {
		return Formula{}, newError("parse", text, err)
	}
	return f, nil
}

// MustParse is like Parse but panics on error.
func (r *Registry) MustParse(text string) Formula {
	f, err := r.Parse(text)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseOrNull parses text and logs a warning instead of returning an error.
func (r *Registry) ParseOrNull(text string) (Formula, bool) {
	f, err := r.Parse(text)
	if err != nil {
		r.logger.Warn("could not parse formula", slog.String("formula", text), slog.Any("error", err))
		return Formula{}, false
	}
	return f, true
}

// ParseAndExecute calls fn with the parsed formula. Unparseable text is
// logged and skipped.
func (r *Registry) ParseAndExecute(text string, fn func(Formula)) {
	if f, ok := r.ParseOrNull(text); ok {
		fn(f)
	}
}

// Parse parses formula text with the default registry.
func Parse(text string) (Formula, error) {
	return Default().Parse(text)
}

// MustParse parses formula text with the default registry and panics on error.
func MustParse(text string) Formula {
	return Default().MustParse(text)
}

// ParseOrNull parses formula text with the default registry, logging failures.
func ParseOrNull(text string) (Formula, bool) {
	return Default().ParseOrNull(text)
}

func leadingDigits(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

func tokenCount(text string, loc []int) (int, error) {
	if loc[4] < 0 || loc[5] == loc[4] {
		return 1, nil
	}
	return parseAmount(text[loc[4]:loc[5]])
}

func parseAmount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n > math.MaxInt16 {
		return 0, fmt.Errorf("%w: %s", ErrRangeExceeded, s)
	}
	return n, nil
}

func scaleAmount(n, k int) (int, error) {
	v := n * k
	if v > math.MaxInt16 || v < math.MinInt16 {
		return 0, ErrRangeExceeded
	}
	return v, nil
}

func gapError(text string, from, to int) error {
	gap := text[from:to]
	if r := rune(gap[0]); unicode.IsLetter(r) {
		end := 1
		for end < len(gap) && unicode.IsLower(rune(gap[end])) {
			end++
		}
		return newError("parse", text, fmt.Errorf("%w: %s", ErrUnknownElement, gap[:end]))
	}
	return newError("parse", text, fmt.Errorf("%w: unexpected %q", ErrMalformedFormulaText, gap))
}
