package pattern

import (
	"strconv"
	"strings"
)

// ChromosomeTerm returns a TermFunc that normalizes chromosome values of the
// given attribute: numbers 1-9 are zero-padded, everything else is upper-cased
// (x -> X). Values of other attributes pass through.
func ChromosomeTerm(chromESID string) TermFunc {
	return func(esid, term string) string {
		if esid != chromESID {
			return term
		}
		if n, err := strconv.Atoi(term); err == nil && n > 0 && n < 10 {
			return "0" + strconv.Itoa(n)
		}
		return strings.ToUpper(term)
	}
}

// Terms maps customQueryTerm names to their constructors.
var Terms = map[string]func(chromESID string) TermFunc{
	"chromosome": ChromosomeTerm,
}
