package evaluate

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// Tokenize lower-cases text, drops URLs and punctuation, folds accents and
// splits on whitespace.
func Tokenize(text string) []string {
	// transformers carry state, so the chain is built per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := urlPattern.ReplaceAllString(text, " ")
	bare = strings.ToLower(nonTokenChars.ReplaceAllString(bare, " "))
	folded, _, err := transform.String(fold, bare)
	if err != nil {
		folded = bare
	}
	return strings.Fields(folded)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
