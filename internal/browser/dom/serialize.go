// browser/dom/serialize.go
package dom

import (
	"strconv"
	"strings"
)

// attrPlan lists, per tag, the attributes tried in order for the visible text
// and the attributes rendered as metadata.
type attrPlan struct {
	text []string
	meta []string
}

var (
	fieldPlan = attrPlan{
		text: []string{"", AttrPlaceholder},
		meta: []string{AttrType, AttrAlt, AttrTitle, AttrAriaLabel, AttrValue, AttrRequired, AttrChecked, AttrMin, AttrMax},
	}
	textPlan    = attrPlan{text: []string{""}}
	defaultPlan = attrPlan{
		text: []string{"", AttrAriaLabel, AttrAlt},
		meta: []string{AttrType, AttrValue},
	}
)

func planFor(t Tag) attrPlan {
	switch t {
	case TagTextInput, TagSelect, TagDatePicker:
		return fieldPlan
	case TagText:
		return textPlan
	default:
		return defaultPlan
	}
}

var quoteEscaper = strings.NewReplacer(`"`, "&quot;")

// Serialize renders the frame as the compact pseudo-markup the model reads.
// Output depends only on the indexed elements.
func (f *Frame) Serialize() string {
	var b strings.Builder
	for _, id := range f.roots {
		f.write(&b, id)
	}
	return b.String()
}

// resolveText picks the first non-empty candidate of the tag's text list.
// A candidate other than the literal text is wrapped in parentheses. Children
// are serialized in front of the element's own text.
func (f *Frame) resolveText(id int) string {
	r := f.records[id]
	var text string
	for _, name := range planFor(r.tag).text {
		v := r.text
		if name != "" {
			v = r.attrs[name]
		}
		if v != "" {
			text = v
			break
		}
	}
	if text != "" && text != r.text {
		text = "(" + text + ")"
	}
	if len(r.children) > 0 {
		var cb strings.Builder
		for _, c := range r.children {
			f.write(&cb, c)
		}
		text = cb.String() + text
	}
	return text
}

func (f *Frame) write(b *strings.Builder, id int) {
	r := f.records[id]
	text := f.resolveText(id)

	if r.tag == TagText {
		b.WriteString(text)
		return
	}
	if r.tag.IsMedia() {
		b.WriteString("![")
		b.WriteString(string(r.tag))
		b.WriteString("](")
		b.WriteString(text)
		b.WriteString(")")
		return
	}

	open := "<" + string(r.tag) + ` id="` + strconv.Itoa(id) + `"`
	for _, name := range planFor(r.tag).meta {
		if v, ok := r.attrs[name]; ok {
			open += " " + name + `="` + quoteEscaper.Replace(v) + `"`
		}
	}

	switch {
	case strings.TrimSpace(text) == "":
		b.WriteString(open)
		b.WriteString("/>\n")
	case strings.Contains(text, "\n"):
		b.WriteString(open)
		b.WriteString(">\n")
		for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("</")
		b.WriteString(string(r.tag))
		b.WriteString(">\n")
	default:
		b.WriteString(open)
		b.WriteString(">")
		b.WriteString(text)
		b.WriteString("</")
		b.WriteString(string(r.tag))
		b.WriteString(">\n")
	}
}
