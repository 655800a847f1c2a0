package matching

import (
	"strings"
	"unicode"
)

// fillerWords are dropped before scoring: they appear in almost every
// market title and carry no event identity.
var fillerWords = map[string]struct{}{
	"will": {}, "the": {}, "a": {}, "an": {}, "be": {}, "is": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "by": {}, "to": {},
	"vs": {}, "v": {}, "and": {}, "or": {},
}

// tokens lowercases the title, splits on anything that is not a letter or
// digit, and drops filler words.
func tokens(title string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, drop := fillerWords[f]; drop {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

// similarity scores two market titles by their shared tokens: the Dice
// coefficient of the normalized token sets, 0 for disjoint titles and 1
// for identical sets regardless of word order.
func similarity(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}
