// browser/dom/element.go
package dom

import (
	"sort"
)

// Tag is the semantic role of a page element as presented to the model.
type Tag string

const (
	TagLink       Tag = "link"
	TagButton     Tag = "button"
	TagCheckbox   Tag = "checkbox"
	TagRadio      Tag = "radio"
	TagSelect     Tag = "select"
	TagTextInput  Tag = "textinput"
	TagDatePicker Tag = "datepicker"
	TagSlider     Tag = "slider"
	TagText       Tag = "text"

	TagImg        Tag = "img"
	TagMap        Tag = "map"
	TagArea       Tag = "area"
	TagCanvas     Tag = "canvas"
	TagFigcaption Tag = "figcaption"
	TagFigure     Tag = "figure"
	TagPicture    Tag = "picture"
	TagSVG        Tag = "svg"
)

// IsMedia reports whether the tag is rendered as a markdown image.
func (t Tag) IsMedia() bool {
	switch t {
	case TagImg, TagMap, TagArea, TagCanvas, TagFigcaption, TagFigure, TagPicture, TagSVG:
		return true
	}
	return false
}

// Attribute names carried on a PageElement.
const (
	AttrName        = "name"
	AttrType        = "type"
	AttrPlaceholder = "placeholder"
	AttrAriaLabel   = "aria_label"
	AttrTitle       = "title"
	AttrAlt         = "alt"
	AttrChecked     = "checked"
	AttrValue       = "value"
	AttrRequired    = "required"
	AttrMin         = "min"
	AttrMax         = "max"
)

// Position is the element's bounding box in viewport coordinates.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageElement is one raw element of a page snapshot. Attributes holds only
// the attributes present on the live node; a present attribute may be empty.
type PageElement struct {
	Tag        Tag               `json:"tag"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Position   Position          `json:"position"`
	Children   []PageElement     `json:"children,omitempty"`
	// Locator is an XPath to the live node. It never reaches the model.
	Locator string `json:"-"`
}

// Attr returns the attribute and whether it is present.
func (e PageElement) Attr(name string) (string, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// SortByPosition stable-sorts a flat list of siblings top to bottom, then left
// to right. Only the given level is reordered.
func SortByPosition(elements []PageElement) {
	sort.SliceStable(elements, func(i, j int) bool {
		a, b := elements[i].Position, elements[j].Position
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}

// record is the arena form of a PageElement: children are ids, not values.
type record struct {
	tag      Tag
	text     string
	attrs    map[string]string
	pos      Position
	locator  string
	children []int
}
