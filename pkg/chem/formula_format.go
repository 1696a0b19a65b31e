package chem

import (
	"sort"
	"strconv"
	"strings"
)

// String formats the formula in Hill order: carbon and hydrogen first when
// carbon is present, all other elements alphabetically by symbol. Counts of
// one are omitted and negative amounts are prefixed with "-".
func (f Formula) String() string {
	if f.IsEmpty() {
		return ""
	}

	c := f.Carbons()
	var rest []*Element
	f.Visit(func(e *Element, _ int) {
		if e.symbol == "C" || (c != 0 && e.symbol == "H") {
			return
		}
		rest = append(rest, e)
	})
	sort.Slice(rest, func(i, j int) bool {
		return rest[i].symbol < rest[j].symbol
	})

	var b strings.Builder
	if c != 0 {
		writeHillTerm(&b, "C", c)
		if h := f.Hydrogens(); h != 0 {
			writeHillTerm(&b, "H", h)
		}
	}
	for _, e := range rest {
		writeHillTerm(&b, e.symbol, f.NumberOf(e))
	}
	return b.String()
}

func writeHillTerm(b *strings.Builder, symbol string, n int) {
	if n < 0 {
		b.WriteByte('-')
		n = -n
	}
	b.WriteString(symbol)
	if n > 1 {
		b.WriteString(strconv.Itoa(n))
	}
}
