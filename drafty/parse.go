package drafty

import (
	"regexp"
	"sort"
	"strings"
)

// Inline markup definitions. Markup cannot cross line breaks. A span opens at
// a marker preceded by a non-word character (for ST and DL an underscore also
// counts as a break) and closes at the next occurrence of the same marker
// followed by a non-word character. The content must be at least minLen
// clusters long and, except for code, must not end with whitespace.
type markupTag struct {
	name string
	// Single-character markup marker.
	marker string
	// Minimum content length in grapheme clusters.
	minLen int
	// Underscore counts as a word break around the span.
	looseEdge bool
	// Content must not end with whitespace.
	noSpaceTail bool
}

var inlineMarkup = []markupTag{
	{name: "ST", marker: "*", minLen: 2, looseEdge: true, noSpaceTail: true},
	{name: "EM", marker: "_", minLen: 2, looseEdge: false, noSpaceTail: true},
	{name: "DL", marker: "~", minLen: 2, looseEdge: true, noSpaceTail: true},
	{name: "CO", marker: "`", minLen: 1, looseEdge: false, noSpaceTail: false},
}

// Entity extraction: URLs, @mentions, #hashtags. These run over text already
// cleared of markup.
var (
	reLink    = regexp.MustCompile(`(?i)\b(https?://)?(?:www\.)?(?:[a-z0-9][-a-z0-9]*[a-z0-9]\.){1,5}[a-z]{2,6}(?:[/?#:][-a-z0-9@:%_+.~#?&/=]*)?`)
	reMention = regexp.MustCompile(`\B@(\w\w+)`)
	// Hashtag must follow whitespace, punctuation, or start of line. The
	// leading break character is consumed by the match and skipped below.
	reHashtag = regexp.MustCompile(`(?:^|[\s,.!])#(\w\w+)`)
)

// parseSpan is a markup span detected in a single line of text.
// start is the position of the opening marker, end is the position of the
// closing marker; content occupies (start, end). Offsets are in grapheme
// clusters.
type parseSpan struct {
	tp       string
	start    int
	end      int
	text     string
	children []*parseSpan
}

// block is one fully processed line of formatted text.
type block struct {
	txt string
	fmt []Style
}

// extractedEnt is an entity reference detected in markup-free text.
type extractedEnt struct {
	at    int
	len   int
	tp    string
	value string
	data  map[string]any
}

func markupBreak(cluster string, loose bool) bool {
	if !isWordCluster(cluster) {
		return true
	}
	return loose && cluster == "_"
}

// spannify detects spans of one markup type within a line.
// Unformatted stretches are ignored at this stage.
func spannify(g *graphemes, tag markupTag) []*parseSpan {
	var spans []*parseSpan
	n := g.length()
	pos := 0
	for pos < n {
		if g.at(pos) != tag.marker || (pos > 0 && !markupBreak(g.at(pos-1), tag.looseEdge)) {
			pos++
			continue
		}
		// The content cannot contain the marker, so the closing marker is its
		// next occurrence.
		closer := -1
		for i := pos + 1; i < n; i++ {
			if g.at(i) == tag.marker {
				closer = i
				break
			}
		}
		if closer < 0 {
			break
		}
		ok := closer-pos-1 >= tag.minLen &&
			(closer == n-1 || markupBreak(g.at(closer+1), tag.looseEdge))
		if ok && tag.noSpaceTail && isSpaceCluster(g.at(closer-1)) {
			ok = false
		}
		if ok {
			spans = append(spans, &parseSpan{
				tp:    tag.name,
				start: pos,
				end:   closer,
				text:  g.slice(pos+1, closer),
			})
			pos = closer + 1
		} else {
			// The closing marker may still open a later span.
			pos = closer
		}
	}
	return spans
}

// toSpanTree converts a flat sorted span list into a tree. Standalone and
// fully nested spans are kept; partially overlapping spans are thrown away
// as invalid markup.
func toSpanTree(spans []*parseSpan) []*parseSpan {
	if len(spans) == 0 {
		return spans
	}

	var tree []*parseSpan
	last := spans[0]
	tree = append(tree, last)
	for _, curr := range spans[1:] {
		if curr.start > last.end {
			// Span is completely outside of the previous span.
			tree = append(tree, curr)
			last = curr
		} else if curr.end < last.end {
			// Span is fully inside of the previous span. Push to subnode.
			last.children = append(last.children, curr)
		}
		// Partial overlap, ignore the span as invalid.
	}

	for _, span := range tree {
		if span.children != nil {
			span.children = toSpanTree(span.children)
		}
	}

	return tree
}

// chunkify recomposes the line and its style spans into an ordered list of
// same-style chunks: markup characters are dropped and styled stretches are
// interleaved with unstyled text.
func chunkify(g *graphemes, start, end int, spans []*parseSpan) []*parseSpan {
	if len(spans) == 0 {
		return spans
	}

	var chunks []*parseSpan
	for _, span := range spans {
		// Grab the initial unstyled chunk.
		if span.start > start {
			chunks = append(chunks, &parseSpan{text: g.slice(start, span.start)})
		}

		// Grab the styled chunk. It may include subchunks.
		chunk := &parseSpan{tp: span.tp}
		if span.children != nil {
			chunk.children = chunkify(g, span.start+1, span.end, span.children)
		} else {
			chunk.text = span.text
		}
		chunks = append(chunks, chunk)

		// Skip the closing formatting character.
		start = span.end + 1
	}

	// Grab the remaining unstyled chunk after the last span.
	if start < end {
		chunks = append(chunks, &parseSpan{text: g.slice(start, end)})
	}

	return chunks
}

// draftify linearizes a chunk tree into one line of text with absolute style
// offsets.
func draftify(chunks []*parseSpan, startAt int) *block {
	b := &block{}
	var ranges []Style
	blkLen := 0
	for _, chunk := range chunks {
		if chunk.text == "" && chunk.children != nil {
			sub := draftify(chunk.children, blkLen+startAt)
			chunk.text = sub.txt
			ranges = append(ranges, sub.fmt...)
		}

		chunkLen := graphemeCount(chunk.text)
		if chunk.tp != "" {
			ranges = append(ranges, Style{Tp: chunk.tp, At: blkLen + startAt, Len: chunkLen})
		}

		b.txt += chunk.text
		blkLen += chunkLen
	}

	b.fmt = ranges
	return b
}

// extractEntities finds entity references in a line already cleared of markup.
func extractEntities(line string, g *graphemes) []*extractedEnt {
	var ents []*extractedEnt

	for _, m := range reLink.FindAllStringSubmatchIndex(line, -1) {
		value := line[m[0]:m[1]]
		url := value
		if m[2] < 0 {
			// No scheme in the matched text.
			url = "http://" + value
		}
		ents = append(ents, &extractedEnt{
			at:    g.clusterIndex(m[0]),
			len:   graphemeCount(value),
			tp:    "LN",
			value: value,
			data:  map[string]any{"url": url},
		})
	}

	for _, m := range reMention.FindAllStringSubmatchIndex(line, -1) {
		value := line[m[0]:m[1]]
		ents = append(ents, &extractedEnt{
			at:    g.clusterIndex(m[0]),
			len:   graphemeCount(value),
			tp:    "MN",
			value: value,
			data:  map[string]any{"val": line[m[2]:m[3]]},
		})
	}

	for _, m := range reHashtag.FindAllStringSubmatchIndex(line, -1) {
		start := m[0]
		if line[start] != '#' {
			// Skip the consumed break character.
			start++
		}
		value := line[start:m[1]]
		ents = append(ents, &extractedEnt{
			at:    g.clusterIndex(start),
			len:   graphemeCount(value),
			tp:    "HT",
			value: value,
			data:  map[string]any{"val": line[m[2]:m[3]]},
		})
	}

	return ents
}

// clusterIndex converts a byte offset into the original string to a grapheme
// cluster offset.
func (g *graphemes) clusterIndex(byteOff int) int {
	b := 0
	for i, size := range g.sizes {
		if b >= byteOff {
			return i
		}
		b += size
	}
	return len(g.sizes)
}

// Parse converts plain text with optional markdown-like markup into a
// structured document.
func Parse(content string) *Document {
	// Break the input into lines: formatting cannot span line breaks.
	lines := strings.Split(content, "\n")

	var blks []*block
	var refs []Entity
	entityMap := map[string]int{}
	for _, line := range lines {
		g := prepareGraphemes(line)
		var spans []*parseSpan
		for _, tag := range inlineMarkup {
			spans = append(spans, spannify(g, tag)...)
		}

		var b *block
		if len(spans) > 0 {
			// Sort markup spans in ascending order by start.
			sort.SliceStable(spans, func(i, j int) bool {
				return spans[i].start < spans[j].start
			})

			// Rearrange the flat span list into a tree, throw away invalid spans.
			spans = toSpanTree(spans)

			// Parse the entire line into styled and unstyled chunks.
			chunks := chunkify(g, 0, g.length(), spans)

			b = draftify(chunks, 0)
		} else {
			b = &block{txt: line}
		}

		// Extract entities from the line already cleared of markup. Identical
		// values share a single entity referenced from multiple styles.
		bg := prepareGraphemes(b.txt)
		for _, eent := range extractEntities(b.txt, bg) {
			idx, ok := entityMap[eent.value]
			if !ok {
				idx = len(refs)
				entityMap[eent.value] = idx
				refs = append(refs, Entity{Tp: eent.tp, Data: eent.data})
			}
			b.fmt = append(b.fmt, Style{At: eent.at, Len: eent.len, Key: idx})
		}

		blks = append(blks, b)
	}

	// Merge lines, converting line breaks into BR styles.
	var text string
	var fmt []Style
	if len(blks) > 0 {
		text = blks[0].txt
		textLen := graphemeCount(text)
		fmt = append(fmt, blks[0].fmt...)
		for _, b := range blks[1:] {
			offset := textLen + 1
			fmt = append(fmt, Style{Tp: "BR", At: offset - 1, Len: 1})

			// BR points at this space.
			text += " " + b.txt
			textLen = offset + graphemeCount(b.txt)
			for _, s := range b.fmt {
				s.At += offset
				fmt = append(fmt, s)
			}
		}
	}

	doc := &Document{Txt: text}
	if len(fmt) > 0 {
		doc.Fmt = fmt
	}
	if len(refs) > 0 {
		doc.Ent = refs
	}
	return doc
}
