// browser/dom/xpath.go
package dom

import (
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// LocatorFor returns an absolute XPath that selects exactly n in its document.
// The nearest ancestor-or-self with a document-unique id anchors the path;
// otherwise the path is positional from the root.
func LocatorFor(n *html.Node) string {
	if n == nil {
		return ""
	}
	root := n
	for root.Parent != nil {
		root = root.Parent
	}

	var steps []string
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		if cur.Type != html.ElementNode || cur.Data == "" {
			continue
		}
		if id := htmlquery.SelectAttr(cur, "id"); id != "" && uniqueID(root, id) {
			steps = append(steps, "//*[@id="+xpathLiteral(id)+"]")
			break
		}
		steps = append(steps, step(cur))
	}
	if len(steps) == 0 {
		return "/"
	}

	var b strings.Builder
	for i := len(steps) - 1; i >= 0; i-- {
		if i == len(steps)-1 && strings.HasPrefix(steps[i], "//") {
			b.WriteString(steps[i])
			continue
		}
		b.WriteByte('/')
		b.WriteString(steps[i])
	}
	return b.String()
}

// step renders n as tag[k], k being its 1-based position among same-tag siblings.
func step(n *html.Node) string {
	tag := strings.ToLower(n.Data)
	k := 1
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && strings.EqualFold(prev.Data, tag) {
			k++
		}
	}
	return tag + "[" + strconv.Itoa(k) + "]"
}

func uniqueID(root *html.Node, id string) bool {
	seen := 0
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && htmlquery.SelectAttr(n, "id") == id {
			seen++
			if seen > 1 {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	return walk(root)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}
