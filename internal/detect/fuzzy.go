package detect

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// TokenSortRatio computes a 0..100 similarity between two strings that is
// insensitive to word order: both sides are tokenised, sorted, rejoined, and
// compared by Levenshtein distance scaled to the longer string.
//
// Inputs are expected to be pre-normalised (lowercased, diacritics stripped);
// the function does not normalise again.
func TokenSortRatio(a, b string) int {
	sa := sortTokens(a)
	sb := sortTokens(b)

	if sa == sb {
		if sa == "" {
			return 0
		}
		return 100
	}
	if sa == "" || sb == "" {
		return 0
	}

	dist := matchr.Levenshtein(sa, sb)
	longest := len([]rune(sa))
	if l := len([]rune(sb)); l > longest {
		longest = l
	}

	ratio := 100 * (longest - dist) / longest
	if ratio < 0 {
		return 0
	}
	return ratio
}

// sortTokens splits s on whitespace, sorts the tokens, and rejoins them.
func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
