// browser/dom/index.go
package dom

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrElementNotFound means the id was never assigned in the frame.
	ErrElementNotFound = errors.New("element not found")
	// ErrStaleElement means the frame the id came from is no longer current.
	ErrStaleElement = errors.New("stale element reference")
	// ErrNotAddressable means the id belongs to a plain text node.
	ErrNotAddressable = errors.New("element is not addressable")
)

var frameSeq atomic.Uint64

// Frame is one indexed observation of a page. Records live in an arena where
// the slice index is the element id.
type Frame struct {
	seq     uint64
	records []record
	roots   []int
	index   *ElementIndex
}

// Handle is the addressable view of an element: what actions need to act on
// the live page.
type Handle struct {
	ID      int
	Tag     Tag
	Text    string
	Attrs   map[string]string
	Locator string
}

// ElementIndex maps ids of non-text elements to their handles. It is valid
// until Invalidate is called, which the owner does once the page may have
// changed.
type ElementIndex struct {
	seq     uint64
	handles map[int]Handle
	text    map[int]bool
	stale   atomic.Bool
}

// Index numbers roots and their descendants in depth-first pre-order starting
// at 0 and builds the element index. roots is taken to be in document order.
func Index(roots []PageElement) *Frame {
	f := &Frame{seq: frameSeq.Add(1)}
	f.index = &ElementIndex{seq: f.seq, handles: make(map[int]Handle), text: make(map[int]bool)}
	for _, r := range roots {
		f.roots = append(f.roots, f.add(r))
	}
	return f
}

// IndexByPosition indexes a flat list that has no document order of its own,
// ordering it visually first. The input slice is not modified.
func IndexByPosition(elements []PageElement) *Frame {
	sorted := make([]PageElement, len(elements))
	copy(sorted, elements)
	SortByPosition(sorted)
	return Index(sorted)
}

func (f *Frame) add(e PageElement) int {
	id := len(f.records)
	f.records = append(f.records, record{
		tag:     e.Tag,
		text:    e.Text,
		attrs:   e.Attributes,
		pos:     e.Position,
		locator: e.Locator,
	})
	children := make([]int, 0, len(e.Children))
	for _, c := range e.Children {
		children = append(children, f.add(c))
	}
	f.records[id].children = children

	if e.Tag == TagText {
		f.index.text[id] = true
	} else {
		f.index.handles[id] = Handle{ID: id, Tag: e.Tag, Text: e.Text, Attrs: e.Attributes, Locator: e.Locator}
	}
	return id
}

// Seq identifies the observation this frame was built from.
func (f *Frame) Seq() uint64 { return f.seq }

// Len is the number of ids assigned, text nodes included.
func (f *Frame) Len() int { return len(f.records) }

// Index returns the frame's element index.
func (f *Frame) Index() *ElementIndex { return f.index }

// Invalidate marks every handle of this frame stale.
func (f *Frame) Invalidate() { f.index.Invalidate() }

// Invalidate marks every handle stale.
func (x *ElementIndex) Invalidate() { x.stale.Store(true) }

// Seq identifies the frame the index belongs to.
func (x *ElementIndex) Seq() uint64 { return x.seq }

// Len is the number of addressable elements.
func (x *ElementIndex) Len() int { return len(x.handles) }

// Lookup resolves id to a live handle.
func (x *ElementIndex) Lookup(id int) (Handle, error) {
	if x == nil {
		return Handle{}, fmt.Errorf("%w: id=%d (no page observed)", ErrElementNotFound, id)
	}
	if x.stale.Load() {
		return Handle{}, fmt.Errorf("%w: id=%d from frame %d", ErrStaleElement, id, x.seq)
	}
	if h, ok := x.handles[id]; ok {
		return h, nil
	}
	if x.text[id] {
		return Handle{}, fmt.Errorf("%w: id=%d is text", ErrNotAddressable, id)
	}
	return Handle{}, fmt.Errorf("%w: id=%d", ErrElementNotFound, id)
}
