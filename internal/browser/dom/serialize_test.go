package dom_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpel-agent/internal/browser/dom"
)

func TestSerialize_DerivedLabelIsParenthesized(t *testing.T) {
	frame := dom.Index([]dom.PageElement{
		{Tag: dom.TagLink, Text: "", Attributes: map[string]string{dom.AttrAriaLabel: "Search"}},
	})
	assert.Equal(t, "<link id=\"0\">(Search)</link>\n", frame.Serialize())
}

func goldenTree() []dom.PageElement {
	return []dom.PageElement{
		{Tag: dom.TagText, Text: "\n# Welcome\n"},
		{Tag: dom.TagLink, Text: "Home"},
		{Tag: dom.TagTextInput, Attributes: map[string]string{
			dom.AttrPlaceholder: "Search the web",
			dom.AttrType:        "search",
			dom.AttrRequired:    "",
		}},
		{Tag: dom.TagSelect, Attributes: map[string]string{dom.AttrName: "lang", dom.AttrValue: "en"}, Children: []dom.PageElement{
			{Tag: dom.TagText, Text: "English\n"},
			{Tag: dom.TagText, Text: "French\n"},
		}},
		{Tag: dom.TagImg, Attributes: map[string]string{dom.AttrAlt: "Logo"}},
		{Tag: dom.TagButton},
		{Tag: dom.TagCheckbox, Attributes: map[string]string{dom.AttrType: "checkbox", dom.AttrChecked: "true"}},
		{Tag: dom.TagLink, Text: `Say "hi"`, Attributes: map[string]string{dom.AttrValue: `a"b`}},
	}
}

const goldenOutput = "\n# Welcome\n" +
	"<link id=\"1\">Home</link>\n" +
	"<textinput id=\"2\" type=\"search\" required=\"\">(Search the web)</textinput>\n" +
	"<select id=\"3\" value=\"en\">\n" +
	"  English\n" +
	"  French\n" +
	"</select>\n" +
	"![img]((Logo))" +
	"<button id=\"7\"/>\n" +
	"<checkbox id=\"8\" type=\"checkbox\"/>\n" +
	"<link id=\"9\" value=\"a&quot;b\">Say \"hi\"</link>\n"

func TestSerialize_Golden(t *testing.T) {
	got := dom.Index(goldenTree()).Serialize()
	if diff := cmp.Diff(goldenOutput, got); diff != "" {
		t.Errorf("Serialize() mismatch (-want +got):\n%s", diff)
	}
}

func TestSerialize_Deterministic(t *testing.T) {
	first := dom.Index(goldenTree()).Serialize()
	second := dom.Index(goldenTree()).Serialize()
	assert.Equal(t, first, second)

	frame := dom.Index(goldenTree())
	assert.Equal(t, frame.Serialize(), frame.Serialize())
}

func TestSerialize_NestedChildrenPrecedeOwnText(t *testing.T) {
	frame := dom.Index([]dom.PageElement{
		{Tag: dom.TagLink, Text: "Cart", Children: []dom.PageElement{
			{Tag: dom.TagImg, Attributes: map[string]string{dom.AttrAlt: "cart icon"}},
		}},
		{Tag: dom.TagButton, Children: []dom.PageElement{
			{Tag: dom.TagText, Text: "Buy\nnow"},
		}},
	})
	want := "<link id=\"0\">![img]((cart icon))Cart</link>\n" +
		"<button id=\"2\">\n" +
		"  Buy\n" +
		"  now\n" +
		"</button>\n"
	if diff := cmp.Diff(want, frame.Serialize()); diff != "" {
		t.Errorf("Serialize() mismatch (-want +got):\n%s", diff)
	}
}

func TestSerialize_TextAttributePriority(t *testing.T) {
	tests := []struct {
		name string
		el   dom.PageElement
		want string
	}{
		{
			name: "input prefers literal text over placeholder",
			el:   dom.PageElement{Tag: dom.TagTextInput, Text: "typed", Attributes: map[string]string{dom.AttrPlaceholder: "hint"}},
			want: "<textinput id=\"0\">typed</textinput>\n",
		},
		{
			name: "input ignores aria label for text but lists it as metadata",
			el:   dom.PageElement{Tag: dom.TagTextInput, Attributes: map[string]string{dom.AttrAriaLabel: "Query"}},
			want: "<textinput id=\"0\" aria_label=\"Query\"/>\n",
		},
		{
			name: "link falls back to alt after aria label",
			el:   dom.PageElement{Tag: dom.TagLink, Attributes: map[string]string{dom.AttrAlt: "logo"}},
			want: "<link id=\"0\">(logo)</link>\n",
		},
		{
			name: "link ignores title",
			el:   dom.PageElement{Tag: dom.TagLink, Attributes: map[string]string{dom.AttrTitle: "tip"}},
			want: "<link id=\"0\"/>\n",
		},
		{
			name: "media keeps literal text unwrapped",
			el:   dom.PageElement{Tag: dom.TagFigcaption, Text: "A cat"},
			want: "![figcaption](A cat)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dom.Index([]dom.PageElement{tt.el}).Serialize())
		})
	}
}
