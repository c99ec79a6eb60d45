package drafty

import (
	"sort"
	"strings"
)

// Node is one element of a document rendered as a tree: either a run of text,
// a styled subtree, or a floating attachment.
type Node struct {
	parent     *Node
	Type       string
	Data       map[string]any
	Key        int
	Text       string
	Children   []*Node
	Attachment bool

	start, end int
}

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// IsUnstyled reports whether the node carries no formatting.
func (n *Node) IsUnstyled() bool {
	return n.Type == ""
}

func (n *Node) isVoid() bool {
	return voidStyles[n.Type]
}

func (n *Node) appendChild(child *Node) *Node {
	child.parent = n
	n.Children = append(n.Children, child)
	return n
}

// lTrim removes whitespace and line breaks on the left.
func (n *Node) lTrim() {
	if n.Type == "BR" {
		n.Text = ""
		n.Type = ""
		n.Children = nil
		n.Data = nil
	} else if n.IsUnstyled() {
		if n.Text != "" {
			n.Text = strings.TrimLeft(n.Text, " \t\n\v\f\r ")
		} else if len(n.Children) > 0 {
			n.Children[0].lTrim()
		}
	}
}

// Transformer mutates or replaces nodes during a top-down tree walk.
// Returning nil drops the node and its subtree.
type Transformer interface {
	Transform(n *Node) *Node
}

// Formatter folds the tree bottom-up into application-defined values, e.g.
// platform rich text. WrapText converts a leaf text run; Apply combines
// formatted children under a styled node. The stack holds the types of the
// ancestor nodes.
type Formatter interface {
	Apply(tp string, data map[string]any, key int, content []any, stack []string) any
	WrapText(text string) any
}

// typeAndData resolves the effective type and payload of a span: explicit
// style type wins, otherwise both come from the referenced entity. A span
// left untyped is hidden.
func typeAndData(n *Node, ent []Entity) (string, map[string]any) {
	var tp string
	var data map[string]any
	if n.Type != "" {
		tp = n.Type
	} else if n.Key >= 0 && n.Key < len(ent) {
		tp = ent[n.Key].Tp
		data = ent[n.Key].Data
	}
	if tp == "" {
		// Type is still undefined? Hide the invalid element.
		tp = "HD"
	}
	return tp, data
}

// spansToTree is the inverse of chunkify: it rebuilds a tree of formatted
// spans interleaved with unstyled text runs.
func spansToTree(parent *Node, g *graphemes, start, end int, spans []*Node) *Node {
	if len(spans) == 0 {
		if start < end {
			parent.appendChild(&Node{Text: g.slice(start, end)})
		}
		return parent
	}

	i := 0
	for i < len(spans) {
		span := spans[i]
		i++
		if span.start < 0 && span.Type == "EX" {
			parent.appendChild(&Node{Type: span.Type, Data: span.Data, Key: span.Key, Attachment: true})
			continue
		}

		// Add the unstyled range before the styled span starts.
		if start < span.start {
			parent.appendChild(&Node{Text: g.slice(start, span.start)})
			start = span.start
		}

		// Collect all spans fully within the current span.
		var subspans []*Node
		for i < len(spans) {
			inner := spans[i]
			i++
			if inner.start < 0 || inner.start >= span.end {
				// Either an attachment or a span past the current one. Put it back and stop.
				i--
				break
			}
			if inner.end <= span.end {
				if inner.start < inner.end || inner.isVoid() {
					subspans = append(subspans, inner)
				}
				// Zero-length non-void spans are dropped.
			}
			// Overlapping subspan, ignore it.
		}

		parent.appendChild(spansToTree(span, g, start, span.end, subspans))
		start = span.end
	}

	// Add the last unformatted range.
	if start < end {
		parent.appendChild(&Node{Text: g.slice(start, end)})
	}

	return parent
}

// toTree converts a document into a tree of nodes ready for transformation
// or formatting. Invalid styles are dropped: negative length, bad entity
// keys, out of bounds ranges.
func toTree(d *Document) *Node {
	fmts := d.Fmt
	entCount := len(d.Ent)

	// A single attachment may be sent without any fmt when all its style
	// values are zero.
	if len(fmts) == 0 {
		if entCount == 1 {
			fmts = []Style{{At: 0, Len: 0, Key: 0}}
		} else {
			return &Node{Text: d.Txt}
		}
	}

	g := prepareGraphemes(d.Txt)
	maxIndex := g.length()

	var attachments []*Node
	var spans []*Node
	for _, aFmt := range fmts {
		if aFmt.Len < 0 {
			continue
		}
		if d.Ent != nil && (aFmt.Key < 0 || aFmt.Key >= entCount) {
			continue
		}
		if aFmt.At < 0 {
			attachments = append(attachments, &Node{start: -1, end: 0, Key: aFmt.Key})
			continue
		}
		if aFmt.At+aFmt.Len > maxIndex {
			continue
		}
		if aFmt.Tp == "" {
			spans = append(spans, &Node{start: aFmt.At, end: aFmt.At + aFmt.Len, Key: aFmt.Key})
		} else {
			spans = append(spans, &Node{Type: aFmt.Tp, start: aFmt.At, end: aFmt.At + aFmt.Len})
		}
	}

	// Sort spans by start (asc), then by length (desc), then by type weight
	// (desc) so that quotes wrap the content they cover.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		if spans[i].end != spans[j].end {
			return spans[i].end > spans[j].end
		}
		ltp, _ := typeAndData(spans[i], d.Ent)
		rtp, _ := typeAndData(spans[j], d.Ent)
		return fmtWeights[ltp] > fmtWeights[rtp]
	})

	spans = append(spans, attachments...)

	for _, span := range spans {
		span.Type, span.Data = typeAndData(span, d.Ent)
	}

	tree := spansToTree(&Node{}, g, 0, maxIndex, spans)

	// Flatten single-child chains, move button text into the 'title' data field.
	return treeTopDown(tree, transformerFunc(func(n *Node) *Node {
		result := n
		if len(result.Children) == 1 {
			child := result.Children[0]
			if result.IsUnstyled() {
				parent := result.parent
				result = child
				result.parent = parent
			} else if child.IsUnstyled() && len(child.Children) == 0 {
				result.Text = child.Text
				result.Children = nil
			}
		}

		if result.Type == "BN" {
			if result.Data == nil {
				result.Data = map[string]any{}
			}
			result.Data["title"] = result.Text
		}
		return result
	}))
}

// transformerFunc adapts a plain function to the Transformer interface.
type transformerFunc func(*Node) *Node

func (f transformerFunc) Transform(n *Node) *Node {
	return f(n)
}

// treeTopDown traverses the tree top-down applying the transformer.
func treeTopDown(tree *Node, tr Transformer) *Node {
	node := tr.Transform(tree)
	if node == nil || len(node.Children) == 0 {
		return node
	}

	var children []*Node
	for _, child := range node.Children {
		if transformed := treeTopDown(child, tr); transformed != nil {
			children = append(children, transformed)
		}
	}
	node.Children = children
	return node
}

// treeBottomUp traverses the tree bottom-up folding it with the formatter.
func treeBottomUp(src *Node, fmt Formatter, stack []string) any {
	if src == nil {
		return nil
	}

	// Children see the type of the current node on the stack, the node's own
	// Apply does not.
	childStack := stack
	if !src.IsUnstyled() {
		childStack = append(childStack, src.Type)
	}

	var content []any
	if len(src.Children) > 0 {
		for _, child := range src.Children {
			if val := treeBottomUp(child, fmt, childStack); val != nil {
				content = append(content, val)
			}
		}
	} else if src.Text != "" {
		content = append(content, fmt.WrapText(src.Text))
	}

	return fmt.Apply(src.Type, src.Data, src.Key, content, stack)
}

// attachmentsToEnd moves attachments to the end of the root's child list.
// Attachments are always at the top level, no need to traverse the tree.
func attachmentsToEnd(tree *Node, maxAttachments int) *Node {
	if tree == nil {
		return nil
	}

	if tree.Attachment {
		tree.Text = " "
		tree.Attachment = false
		tree.Children = nil
	} else if len(tree.Children) > 0 {
		var ordinary, attachments []*Node
		for _, c := range tree.Children {
			if c.Attachment {
				if len(attachments) == maxAttachments {
					// Too many attachments to preview.
					continue
				}
				if mime, _ := c.Data["mime"].(string); mime == JSONMimeType {
					// JSON attachments are not shown in previews.
					continue
				}
				c.Attachment = false
				c.Children = nil
				c.Text = " "
				attachments = append(attachments, c)
			} else {
				ordinary = append(ordinary, c)
			}
		}
		tree.Children = append(ordinary, attachments...)
	}
	return tree
}

// shortener trims the tree to a length budget, appending the tail where the
// cut was made.
type shortener struct {
	limit   int
	tail    string
	tailLen int
}

func newShortener(length int, tail string) *shortener {
	return &shortener{
		limit:   length - graphemeCount(tail),
		tail:    tail,
		tailLen: graphemeCount(tail),
	}
}

func (s *shortener) Transform(n *Node) *Node {
	if s.limit <= -1 {
		// The document was already clipped: drop all following nodes.
		return nil
	}
	if n.Attachment {
		// Attachments are unchanged.
		return n
	}

	if s.limit == 0 {
		n.Text = s.tail
		s.limit = -1
	} else if n.Text != "" {
		length := graphemeCount(n.Text)
		if length > s.limit {
			n.Text = truncateGraphemes(n.Text, s.limit) + s.tail
			s.limit = -1
		} else {
			s.limit -= length
		}
	}
	return n
}

// lightCopy strips entity payloads of heavy content. Fields listed in
// allowed are kept at full size for the listed types, everything else is
// limited to maxPreviewDataSize.
type lightCopy struct {
	allowed  []string
	forTypes []string
}

func (l *lightCopy) isAllowed(tp, field string) bool {
	return contains(l.allowed, field) && contains(l.forTypes, tp)
}

func (l *lightCopy) Transform(n *Node) *Node {
	n.Data = l.copyEntData(n.Type, n.Data, maxPreviewDataSize)
	return n
}

func (l *lightCopy) copyEntData(tp string, data map[string]any, maxLength int) map[string]any {
	if len(data) == 0 {
		return data
	}

	dc := map[string]any{}
	for _, key := range knownDataFields {
		value, ok := data[key]
		if !ok {
			continue
		}
		if maxLength <= 0 || l.isAllowed(tp, key) {
			dc[key] = value
			continue
		}

		switch v := value.(type) {
		case string:
			if len(v) > maxLength {
				continue
			}
		case []byte:
			if len(v) > maxLength {
				continue
			}
		case []any:
			if len(v) > maxLength {
				continue
			}
		case map[string]any:
			continue
		}
		dc[key] = value
	}

	if len(dc) == 0 {
		return nil
	}
	return dc
}

func contains(set []string, val string) bool {
	for _, s := range set {
		if s == val {
			return true
		}
	}
	return false
}

// appendTo converts the tree of nodes rooted at n back into a document.
// The keymap prevents duplication of entities shared by multiple styles.
func (n *Node) appendTo(doc *Document, keymap map[int]int) {
	start := doc.length()
	if n.Text != "" {
		doc.Txt += n.Text
	} else {
		for _, child := range n.Children {
			child.appendTo(doc, keymap)
		}
	}

	if n.Type == "" {
		return
	}
	addedLen := doc.length() - start
	if addedLen == 0 && n.Type != "BR" && n.Type != "EX" {
		return
	}
	if doc.Fmt == nil {
		doc.Fmt = []Style{}
	}
	if len(n.Data) > 0 {
		// Got an entity.
		if doc.Ent == nil {
			doc.Ent = []Entity{}
		}
		newKey, ok := keymap[n.Key]
		if !ok {
			newKey = len(doc.Ent)
			keymap[n.Key] = newKey
			doc.Ent = append(doc.Ent, Entity{Tp: n.Type, Data: n.Data})
		}
		at, length := -1, 0
		if !n.Attachment {
			at = start
			length = addedLen
		}
		doc.Fmt = append(doc.Fmt, Style{At: at, Len: length, Key: newKey})
	} else {
		// No entity.
		doc.Fmt = append(doc.Fmt, Style{Tp: n.Type, At: start, Len: addedLen})
	}
}

func (n *Node) toDocument() *Document {
	doc := &Document{}
	n.appendTo(doc, map[int]int{})
	return doc
}

// Shorten trims the document to the given length in grapheme clusters,
// marking the cut with an ellipsis. With stripHeavyEntities entity payloads
// are reduced to the light subset.
func (d *Document) Shorten(length int, stripHeavyEntities bool) *Document {
	tree := toTree(d)
	tree = treeTopDown(tree, newShortener(length, "…"))
	if tree != nil && stripHeavyEntities {
		tree = treeTopDown(tree, &lightCopy{})
	}
	if tree == nil {
		return &Document{}
	}
	return tree.toDocument()
}

// Preview creates a shortened and trimmed preview of the document: the full
// forwarding mention is converted to a single '➦', attachments are moved to
// the end, quotes and line breaks are replaced with spaces, and entity
// payloads are stripped down.
func (d *Document) Preview(length int) *Document {
	tree := toTree(d)
	tree = attachmentsToEnd(tree, maxPreviewAttachments)
	tree = treeTopDown(tree, transformerFunc(func(n *Node) *Node {
		switch n.Type {
		case "MN":
			if strings.HasPrefix(n.Text, "➦") && (n.parent == nil || n.parent.IsUnstyled()) {
				n.Text = "➦"
				n.Children = nil
			}
		case "QQ":
			n.Text = " "
			n.Children = nil
		case "BR":
			n.Text = " "
			n.Children = nil
			n.Type = ""
		}
		return n
	}))
	tree = treeTopDown(tree, newShortener(length, "…"))
	if tree != nil {
		tree = treeTopDown(tree, &lightCopy{
			allowed:  []string{"state", "incoming", "preview", "preref", "val", "ref"},
			forTypes: []string{"IM", "VC", "VD"},
		})
	}
	if tree == nil {
		return &Document{}
	}
	return tree.toDocument()
}

// Forwarded removes the leading mention and leading line breaks making the
// document suitable for forwarding.
func (d *Document) Forwarded() *Document {
	tree := toTree(d)
	// Strip the leading mention to avoid nested mentions in multiple forwards.
	tree = treeTopDown(tree, transformerFunc(func(n *Node) *Node {
		if n.Type == "MN" && strings.HasPrefix(n.Text, "➦") &&
			(n.parent == nil || n.parent.IsUnstyled()) {
			return nil
		}
		return n
	}))
	if tree == nil {
		return &Document{}
	}
	tree.lTrim()
	return tree.toDocument()
}

// Reply prepares the document for wrapping into a QQ quote as a reply:
// quoted text is removed, the forwarding mention is collapsed to '➦', line
// breaks become spaces, heavy entity content is stripped and attachments are
// moved to the end.
func (d *Document) Reply(length, maxAttachments int) *Document {
	tree := toTree(d)
	tree = treeTopDown(tree, transformerFunc(func(n *Node) *Node {
		switch n.Type {
		case "QQ":
			return nil
		case "MN":
			if strings.HasPrefix(n.Text, "➦") && (n.parent == nil || n.parent.IsUnstyled()) {
				n.Text = "➦"
				n.Children = nil
				n.Data = nil
			}
		case "BR":
			n.Text = " "
			n.Type = ""
			n.Children = nil
		}
		return n
	}))
	tree = attachmentsToEnd(tree, maxAttachments)
	tree = treeTopDown(tree, newShortener(length, "…"))
	if tree != nil {
		tree = treeTopDown(tree, &lightCopy{
			allowed:  []string{"val", "preview", "preref"},
			forTypes: []string{"IM", "VD"},
		})
	}
	if tree == nil {
		return &Document{}
	}
	return tree.toDocument()
}

// Transform applies a custom transformer to the document tree top-down and
// returns the result as a new document.
func (d *Document) Transform(tr Transformer) *Document {
	tree := treeTopDown(toTree(d), tr)
	if tree == nil {
		return &Document{}
	}
	return tree.toDocument()
}

// Format folds the document into application-defined rendering output.
func (d *Document) Format(fmt Formatter) any {
	return treeBottomUp(toTree(d), fmt, []string{})
}

// markdownFormatter re-creates markup text from a formatted document.
type markdownFormatter struct {
	plainLinks bool
}

func (f *markdownFormatter) WrapText(text string) any {
	return text
}

func (f *markdownFormatter) Apply(tp string, data map[string]any, _ int, content []any, _ []string) any {
	var res strings.Builder
	for _, c := range content {
		res.WriteString(c.(string))
	}

	switch tp {
	case "":
		return res.String()
	case "BR":
		return "\n"
	case "HT":
		return "#" + res.String()
	case "MN":
		return "@" + res.String()
	case "ST":
		return "*" + res.String() + "*"
	case "EM":
		return "_" + res.String() + "_"
	case "DL":
		return "~" + res.String() + "~"
	case "CO":
		return "`" + res.String() + "`"
	case "LN":
		if !f.plainLinks {
			url, _ := data["url"].(string)
			return "[" + res.String() + "](" + url + ")"
		}
	}
	return res.String()
}

// ToMarkdown converts the document back to a markup string. With plainLinks
// URLs are written as plain text.
func (d *Document) ToMarkdown(plainLinks bool) string {
	res, _ := d.Format(&markdownFormatter{plainLinks: plainLinks}).(string)
	return res
}

// plainTextFormatter renders the document as human-readable text with
// bracketed placeholders for images, files and buttons.
type plainTextFormatter struct{}

func (plainTextFormatter) WrapText(text string) any {
	return text
}

func (plainTextFormatter) Apply(tp string, data map[string]any, _ int, content []any, _ []string) any {
	var res strings.Builder
	for _, c := range content {
		res.WriteString(c.(string))
	}
	text := res.String()

	switch tp {
	case "ST":
		return "*" + text + "*"
	case "EM":
		return "_" + text + "_"
	case "DL":
		return "~" + text + "~"
	case "CO":
		return "`" + text + "`"
	case "BR":
		return "\n"
	case "LN":
		if url, ok := data["url"].(string); ok && url != text {
			return "[" + text + "](" + url + ")"
		}
		return text
	case "IM":
		return "[IMAGE '" + nameOrPlaceholder(data) + "']"
	case "VD":
		return "[VIDEO '" + nameOrPlaceholder(data) + "']"
	case "AU":
		return "[AUDIO '" + nameOrPlaceholder(data) + "']"
	case "EX":
		return "[FILE '" + nameOrPlaceholder(data) + "']"
	case "BN":
		return "<" + text + ">"
	}
	return text
}

func nameOrPlaceholder(data map[string]any) string {
	if name, ok := data["name"].(string); ok && name != "" {
		return name
	}
	return "?"
}

// ToPlainText renders the document as human-readable text with markup
// decorations and bracketed attachment placeholders.
func (d *Document) ToPlainText() string {
	res, _ := d.Format(plainTextFormatter{}).(string)
	return res
}
