package drafty

import (
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// graphemes is a container holding lengths of grapheme clusters in a string.
// All drafty offsets and lengths are expressed in grapheme clusters, not in
// bytes or runes, so user-perceived characters like emoji count as one.
type graphemes struct {
	// The original string.
	original string

	// Sizes of grapheme clusters within the original string.
	sizes []int
}

// prepareGraphemes returns a parsed grapheme cluster container by splitting the string into grapheme clusters
// and saving their lengths.
func prepareGraphemes(str string) *graphemes {
	sizes := make([]int, 0, len(str))
	for state, remaining, cluster := -1, str, ""; len(remaining) > 0; {
		cluster, remaining, _, state = uniseg.StepString(remaining, state)
		sizes = append(sizes, len(cluster))
	}

	return &graphemes{
		original: str,
		sizes:    sizes,
	}
}

// length returns the number of grapheme clusters in the original string.
func (g *graphemes) length() int {
	if g == nil {
		return 0
	}
	return len(g.sizes)
}

// string returns the original string from which the grapheme cluster container was created.
func (g *graphemes) string() string {
	if g == nil {
		return ""
	}
	return g.original
}

// byteOffset converts a grapheme cluster offset to a byte offset into the original string.
func (g *graphemes) byteOffset(pos int) int {
	b := 0
	for i := 0; i < pos; i++ {
		b += g.sizes[i]
	}
	return b
}

// slice returns the substring with grapheme clusters from 'start' to 'end'.
func (g *graphemes) slice(start, end int) string {
	s := g.byteOffset(start)
	e := s
	for i := start; i < end; i++ {
		e += g.sizes[i]
	}
	return g.original[s:e]
}

// at returns the grapheme cluster at the given position.
func (g *graphemes) at(pos int) string {
	s := g.byteOffset(pos)
	return g.original[s : s+g.sizes[pos]]
}

// graphemeCount returns the number of grapheme clusters in a string.
func graphemeCount(str string) int {
	return uniseg.GraphemeClusterCount(str)
}

// truncateGraphemes returns the prefix of str containing at most 'limit' grapheme clusters.
func truncateGraphemes(str string, limit int) string {
	if limit <= 0 {
		return ""
	}
	b, n := 0, 0
	for state, remaining, cluster := -1, str, ""; len(remaining) > 0; {
		cluster, remaining, _, state = uniseg.StepString(remaining, state)
		b += len(cluster)
		n++
		if n == limit {
			break
		}
	}
	return str[:b]
}

// isWordCluster reports if the cluster starts with a word character (letter, digit or underscore).
func isWordCluster(cluster string) bool {
	r, _ := utf8.DecodeRuneInString(cluster)
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isSpaceCluster reports if the cluster starts with a whitespace character.
func isSpaceCluster(cluster string) bool {
	r, _ := utf8.DecodeRuneInString(cluster)
	return unicode.IsSpace(r)
}
