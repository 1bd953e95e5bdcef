package dom_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-agent/internal/browser/dom"
)

const snapshotHTML = `<html><head><title>T</title><script>var x = 1;</script></head>
<body>
	<h1>Welcome</h1>
	<p>Hello <b>world</b></p>
	<a href="/next" id="next">Next <span>page</span></a>
	<input type="search" placeholder="Search" name="q" data-scalpel-value="golang">
	<input type="hidden" name="csrf" value="x">
	<div style="display: none"><p>Secret</p></div>
	<button disabled>Nope</button>
	<select name="lang"><option value="en">English</option><option disabled>Klingon</option></select>
	<input type="checkbox" data-scalpel-checked="true">
	<input type="date">
	<img src="a.png" alt="Logo">
	<p data-scalpel-offscreen="1">Far away</p>
	<div data-scalpel-hidden="1"><a href="/x">Hidden link</a></div>
	<div data-scalpel-rect="10,20,30,40">Boxed</div>
</body></html>`

func TestParseSnapshot(t *testing.T) {
	elements, err := dom.ParseSnapshot(strings.NewReader(snapshotHTML))
	require.NoError(t, err)
	require.Len(t, elements, 9)

	tags := make([]dom.Tag, len(elements))
	for i, e := range elements {
		tags[i] = e.Tag
	}
	assert.Equal(t, []dom.Tag{
		dom.TagText, dom.TagText, dom.TagLink, dom.TagTextInput, dom.TagSelect,
		dom.TagCheckbox, dom.TagDatePicker, dom.TagImg, dom.TagText,
	}, tags)

	assert.Equal(t, "\n# Welcome\n", elements[0].Text)
	assert.Contains(t, elements[1].Text, "**world**")

	link := elements[2]
	assert.Equal(t, "Next page", link.Text)
	assert.Equal(t, `//*[@id='next']`, link.Locator)
	assert.Nil(t, link.Attributes)

	input := elements[3]
	assert.Equal(t, map[string]string{
		dom.AttrType:        "search",
		dom.AttrPlaceholder: "Search",
		dom.AttrName:        "q",
		dom.AttrValue:       "golang",
	}, input.Attributes)

	sel := elements[4]
	require.Len(t, sel.Children, 1, "disabled options are dropped")
	assert.Equal(t, "English\n", sel.Children[0].Text)

	assert.Equal(t, "true", elements[5].Attributes[dom.AttrChecked])
	assert.Equal(t, "Logo", elements[7].Attributes[dom.AttrAlt])
	assert.Equal(t, dom.Position{X: 10, Y: 20, Width: 30, Height: 40}, elements[8].Position)
}

func TestParseSnapshot_Serialized(t *testing.T) {
	elements, err := dom.ParseSnapshot(strings.NewReader(snapshotHTML))
	require.NoError(t, err)

	want := "\n# Welcome\n" +
		"\nHello  **world**\n" +
		"<link id=\"2\">Next page</link>\n" +
		"<textinput id=\"3\" type=\"search\" value=\"golang\">(Search)</textinput>\n" +
		"<select id=\"4\">\n" +
		"  English\n" +
		"</select>\n" +
		"<checkbox id=\"6\" type=\"checkbox\"/>\n" +
		"<datepicker id=\"7\" type=\"date\"/>\n" +
		"![img]((Logo))" +
		"\nBoxed\n"
	if diff := cmp.Diff(want, dom.Index(elements).Serialize()); diff != "" {
		t.Errorf("serialized snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSnapshot_Markdown(t *testing.T) {
	html := `<html><body><div>Intro <i>soft</i> <s>gone</s><pre>x := 1</pre><hr></div></body></html>`
	elements, err := dom.ParseSnapshot(strings.NewReader(html))
	require.NoError(t, err)
	require.Len(t, elements, 1)

	text := elements[0].Text
	assert.Contains(t, text, "_soft_")
	assert.Contains(t, text, "~~gone~~")
	assert.Contains(t, text, "```\nx := 1\n```")
	assert.Contains(t, text, "------")
}

func TestParseSnapshot_LinkContentNests(t *testing.T) {
	page := `<html><body>` +
		`<a href="/"><img alt="Logo"> Home</a>` +
		`<button><span>Buy</span> <img alt="cart"></button>` +
		`<a href="/docs">Read <b>the</b> docs</a>` +
		`</body></html>`
	elements, err := dom.ParseSnapshot(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, elements, 3, "nested media must not surface at top level")

	home := elements[0]
	assert.Empty(t, home.Text)
	require.Len(t, home.Children, 2)
	assert.Equal(t, dom.TagImg, home.Children[0].Tag)
	assert.Equal(t, dom.PageElement{Tag: dom.TagText, Text: "Home", Locator: "/html[1]/body[1]/a[1]"}, home.Children[1])

	docs := elements[2]
	assert.Equal(t, "Read  **the** docs", docs.Text, "text-only links keep their own text")
	assert.Empty(t, docs.Children)

	want := "<link id=\"0\">![img]((Logo))Home</link>\n" +
		"<link id=\"3\">Buy ![img]((cart))</link>\n" +
		"<link id=\"6\">Read  **the** docs</link>\n"
	if diff := cmp.Diff(want, dom.Index(elements).Serialize()); diff != "" {
		t.Errorf("serialized links mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSnapshot_NestedControlInLink(t *testing.T) {
	page := `<html><body><a href="/cart">Cart <button aria-label="Remove"><svg></svg></button></a></body></html>`
	elements, err := dom.ParseSnapshot(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, elements, 1)

	frame := dom.Index(elements)
	assert.Equal(t, "<link id=\"0\">\n  Cart <link id=\"2\">![svg]()(Remove)</link>\n</link>\n", frame.Serialize())

	h, err := frame.Index().Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, dom.TagLink, h.Tag)
}
