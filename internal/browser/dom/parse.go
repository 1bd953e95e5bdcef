// browser/dom/parse.go
package dom

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Annotations the page script writes onto live nodes before the markup is
// captured. Layout only exists in the browser, so visibility and geometry are
// carried through the markup this way.
const (
	AnnotHidden    = "data-scalpel-hidden"
	AnnotOffscreen = "data-scalpel-offscreen"
	AnnotRect      = "data-scalpel-rect"
	AnnotValue     = "data-scalpel-value"
	AnnotChecked   = "data-scalpel-checked"
)

// htmlAttrs maps the DOM attribute names kept on a PageElement to their
// PageElement keys.
var htmlAttrs = []struct{ dom, key string }{
	{"name", AttrName},
	{"type", AttrType},
	{"placeholder", AttrPlaceholder},
	{"aria-label", AttrAriaLabel},
	{"title", AttrTitle},
	{"alt", AttrAlt},
	{"checked", AttrChecked},
	{"value", AttrValue},
	{"required", AttrRequired},
	{"min", AttrMin},
	{"max", AttrMax},
}

var skippedTags = set("head", "meta", "base", "basefont", "script", "noscript", "applet", "embed",
	"object", "param", "iframe", "style", "template")

var (
	linkButtonTypes = set("button", "submit", "reset")
	textInputTypes  = set("", "text", "password", "email", "search", "number", "tel", "url")
	dateInputTypes  = set("date", "datetime-local", "month", "week", "time")
	textContainers  = set("p", "h1", "h2", "h3", "h4", "h5", "h6", "span", "div", "label", "li", "option", "td", "th")
	mediaTags       = set("img", "svg", "canvas", "area", "figcaption")
	controlTags     = set("a", "button", "input", "textarea", "select")

	inlineBold    = set("b", "strong", "em", "ins", "mark")
	inlineItalic  = set("i", "sub", "dfn", "var")
	inlineStrike  = set("s", "del")
	inlineFormats = set("abbr", "b", "bdi", "bdo", "cite", "del", "dfn", "em", "i", "ins", "kbd", "mark",
		"meter", "progress", "q", "rp", "rt", "ruby", "s", "small", "strong", "sub", "sup", "time", "u", "var", "wbr")
	blockFormats = set("address", "blockquote", "code", "pre", "samp")
	semanticTags = set("div", "span", "header", "hgroup", "footer", "main", "section", "search", "article",
		"aside", "details", "dialog", "summary", "data")
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// ParseSnapshot parses annotated page markup and extracts its elements in
// document order.
func ParseSnapshot(r io.Reader) ([]PageElement, error) {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}
	return Extract(doc), nil
}

// Extract walks a parsed document and classifies every visible element the
// model can read or act on, in document order. Select options and the content
// of links holding media or nested controls become children.
func Extract(doc *html.Node) []PageElement {
	var out []PageElement
	var walk func(n *html.Node, covered bool)
	walk = func(n *html.Node, covered bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			tag := strings.ToLower(c.Data)
			if skippedTags[tag] || isHidden(c) {
				continue
			}

			el, ok, descend := classify(c, tag, covered)
			if ok && !htmlquery.ExistsAttr(c, AnnotOffscreen) {
				out = append(out, el)
			}
			if descend {
				walk(c, covered || ok)
			}
		}
	}
	walk(doc, false)
	return out
}

// classify decides whether n becomes a PageElement. descend reports whether
// its subtree may hold further elements. covered is set below any selected
// node and suppresses text nodes whose text the ancestor already carries.
func classify(n *html.Node, tag string, covered bool) (PageElement, bool, bool) {
	inputType := strings.ToLower(htmlquery.SelectAttr(n, "type"))
	if isDisabled(n) {
		return PageElement{}, false, false
	}

	switch {
	case tag == "a" || tag == "button" || (tag == "input" && linkButtonTypes[inputType]) ||
		strings.EqualFold(htmlquery.SelectAttr(n, "role"), "button"):
		text, children := containerContent(n)
		el := newElement(n, TagLink, text)
		el.Children = children
		return el, true, false

	case tag == "textarea" || (tag == "input" && textInputTypes[inputType]):
		return newElement(n, TagTextInput, strings.TrimSpace(pureText(n))), true, false

	case tag == "input" && (inputType == "checkbox" || inputType == "radio"):
		return newElement(n, Tag(inputType), ""), true, false

	case tag == "input" && dateInputTypes[inputType]:
		return newElement(n, TagDatePicker, ""), true, false

	case tag == "input" && inputType == "range":
		return newElement(n, TagSlider, ""), true, false

	case tag == "input":
		// hidden, file, color, image and friends have no action.
		return PageElement{}, false, false

	case tag == "select":
		el := newElement(n, TagSelect, "")
		el.Children = selectOptions(n)
		return el, true, false

	case mediaTags[tag]:
		return newElement(n, Tag(tag), strings.TrimSpace(pureText(n))), true, tag != "svg"

	case textContainers[tag]:
		if covered || !hasDirectText(n) {
			return PageElement{}, false, true
		}
		return newElement(n, TagText, pureText(n)), true, true
	}
	return PageElement{}, false, true
}

func newElement(n *html.Node, tag Tag, text string) PageElement {
	el := PageElement{
		Tag:      tag,
		Text:     text,
		Position: parseRect(htmlquery.SelectAttr(n, AnnotRect)),
		Locator:  LocatorFor(n),
	}
	if tag == TagText {
		return el
	}

	attrs := make(map[string]string)
	for _, a := range htmlAttrs {
		if htmlquery.ExistsAttr(n, a.dom) {
			attrs[a.key] = htmlquery.SelectAttr(n, a.dom)
		}
	}
	if htmlquery.ExistsAttr(n, AnnotValue) {
		attrs[AttrValue] = htmlquery.SelectAttr(n, AnnotValue)
	}
	if htmlquery.ExistsAttr(n, AnnotChecked) {
		if htmlquery.SelectAttr(n, AnnotChecked) == "true" {
			attrs[AttrChecked] = "true"
		} else {
			delete(attrs, AttrChecked)
		}
	}
	if len(attrs) > 0 {
		el.Attributes = attrs
	}
	return el
}

// containerContent returns the text of a link-like container, or, when it
// holds media or nested controls, its whole content as children in document
// order. Adjacent text is merged into one text child.
func containerContent(n *html.Node) (string, []PageElement) {
	if !hasNestedElement(n) {
		return strings.TrimSpace(pureText(n)), nil
	}
	var children []PageElement
	collectContent(n, &children)
	for i := 0; i < len(children)-1; i++ {
		if children[i].Tag == TagText {
			children[i].Text += " "
		}
	}
	return "", children
}

func collectContent(n *html.Node, out *[]PageElement) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			appendText(out, strings.TrimSpace(c.Data), n)
		case html.ElementNode:
			tag := strings.ToLower(c.Data)
			if skippedTags[tag] || isHidden(c) {
				continue
			}
			if el, ok, _ := classify(c, tag, true); ok {
				*out = append(*out, el)
				continue
			}
			if hasNestedElement(c) {
				collectContent(c, out)
				continue
			}
			appendText(out, strings.TrimSpace(pureText(c)), c)
		}
	}
}

func appendText(out *[]PageElement, text string, n *html.Node) {
	if text == "" {
		return
	}
	if last := len(*out) - 1; last >= 0 && (*out)[last].Tag == TagText {
		(*out)[last].Text += " " + text
		return
	}
	*out = append(*out, PageElement{Tag: TagText, Text: text, Locator: LocatorFor(n)})
}

// hasNestedElement reports whether a visible descendant of n is media or a
// control of its own.
func hasNestedElement(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(c.Data)
		if skippedTags[tag] || isHidden(c) {
			continue
		}
		if mediaTags[tag] || controlTags[tag] || hasNestedElement(c) {
			return true
		}
	}
	return false
}

// selectOptions lists the enabled options of a select as text children.
func selectOptions(selectNode *html.Node) []PageElement {
	var options []PageElement
	for _, node := range htmlquery.Find(selectNode, ".//option") {
		if htmlquery.ExistsAttr(node, "disabled") {
			continue
		}
		if p := node.Parent; p != nil && strings.EqualFold(p.Data, "optgroup") && htmlquery.ExistsAttr(p, "disabled") {
			continue
		}
		label := strings.TrimSpace(htmlquery.InnerText(node))
		if label == "" {
			label = htmlquery.SelectAttr(node, "value")
		}
		if label == "" {
			continue
		}
		options = append(options, PageElement{Tag: TagText, Text: label + "\n", Locator: LocatorFor(node)})
	}
	return options
}

func isHidden(n *html.Node) bool {
	if htmlquery.ExistsAttr(n, AnnotHidden) || htmlquery.ExistsAttr(n, "hidden") {
		return true
	}
	if strings.EqualFold(n.Data, "input") && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
		return true
	}
	style := strings.ToLower(strings.ReplaceAll(htmlquery.SelectAttr(n, "style"), " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func isDisabled(n *html.Node) bool {
	return htmlquery.ExistsAttr(n, "disabled") || htmlquery.SelectAttr(n, "aria-disabled") == "true"
}

func hasDirectText(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return true
		}
	}
	return false
}

// parseRect reads the "x,y,width,height" annotation.
func parseRect(v string) Position {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return Position{}
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Position{}
		}
		vals[i] = f
	}
	return Position{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
}

// pureText renders the readable text under n with light markdown: headings,
// emphasis, strike-through, rules and code fences.
func pureText(n *html.Node) string {
	if n.Type == html.ElementNode && (skippedTags[strings.ToLower(n.Data)] || isHidden(n)) {
		return ""
	}

	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(strings.TrimSpace(c.Data))
			b.WriteByte(' ')
		case html.ElementNode:
			b.WriteString(pureText(c))
		}
	}
	text := strings.TrimSpace(b.String())
	tag := strings.ToLower(n.Data)

	switch {
	case tag == "hr":
		return "\n------" + text + "\n"
	case tag == "br":
		if text != "" {
			return "\n" + text + "\n"
		}
		return "\n"
	case tag == "p":
		return "\n" + text + "\n"
	case len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6':
		return "\n" + strings.Repeat("#", int(tag[1]-'0')) + " " + text + "\n"
	}

	switch {
	case inlineFormats[tag]:
		switch {
		case inlineBold[tag]:
			text = "**" + text + "**"
		case inlineItalic[tag]:
			text = "_" + text + "_"
		case tag == "u":
			text = "<u>" + text + "</u>"
		case inlineStrike[tag]:
			text = "~~" + text + "~~"
		}
		return " " + text + " "
	case blockFormats[tag]:
		switch tag {
		case "code", "samp", "pre":
			text = "```\n" + text + "\n```"
		case "blockquote":
			lines := strings.Split(text, "\n")
			for i, l := range lines {
				lines[i] = "> " + l
			}
			text = strings.Join(lines, "\n")
		}
		return "\n" + text + "\n"
	case semanticTags[tag]:
		if tag == "span" || text == "" {
			return text
		}
		return "\n" + text + "\n"
	}

	if text == "" {
		return ""
	}
	return text + "\n"
}
