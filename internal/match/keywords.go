package match

import "strings"

// stopWords are dropped during keyword extraction. Short function words
// carry no signal for item descriptions.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "was": {}, "are": {}, "were": {},
	"be": {}, "been": {}, "have": {}, "has": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "could": {}, "should": {},
}

// KeywordSet is a set of normalized tokens extracted from free text.
type KeywordSet map[string]struct{}

// Keywords tokenizes free text into a set of normalized keywords:
// lowercase, punctuation stripped, whitespace-split, with stop words and
// tokens of length <= 2 dropped.
func Keywords(text string) KeywordSet {
	set := make(KeywordSet)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		word := b.String()
		b.Reset()
		if len(word) <= 2 {
			return
		}
		if _, stop := stopWords[word]; stop {
			return
		}
		set[word] = struct{}{}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n', r == '\r':
			flush()
		default:
			// Punctuation and other symbols are stripped, not treated as
			// separators: "don't" tokenizes to "dont".
		}
	}
	flush()
	return set
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Similarity computes the Jaccard index |A∩B| / |A∪B| of two keyword sets.
// Either set being empty yields 0.
func Similarity(a, b KeywordSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
