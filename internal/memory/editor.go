package memory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// End is the Insert position that appends after the last line.
const End = -1

// ErrInvalidRange is returned for a Range that is not structurally valid or
// does not fit the current buffer.
var ErrInvalidRange = errors.New("invalid line range")

// Range is a half-open line range [Start, End). Either both bounds are
// non-negative with Start <= End, or Start is negative and End is negative or
// zero, counting from the end of the buffer. An End of 0 paired with a
// negative Start means "through the last line".
type Range struct {
	Start int
	End   int
}

// TextEditor is a line-addressed buffer, used for terminal transcripts.
type TextEditor struct {
	mu    sync.Mutex
	lines []string
}

// NewTextEditor returns an empty buffer.
func NewTextEditor() *TextEditor {
	return &TextEditor{}
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = strings.TrimSpace(l)
	}
	return out
}

// Insert splits text into lines and inserts them before line pos (0-based).
// pos == End appends.
func (e *TextEditor) Insert(text string, pos int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insert(text, pos)
}

func (e *TextEditor) insert(text string, pos int) error {
	if pos == End {
		pos = len(e.lines)
	}
	if pos < 0 || pos > len(e.lines) {
		return fmt.Errorf("%w: insert position %d outside [0, %d]", ErrPositionOutOfRange, pos, len(e.lines))
	}
	added := splitLines(text)
	lines := make([]string, 0, len(e.lines)+len(added))
	lines = append(lines, e.lines[:pos]...)
	lines = append(lines, added...)
	lines = append(lines, e.lines[pos:]...)
	e.lines = lines
	return nil
}

// normalize resolves r against n lines.
func normalize(r Range, n int) (int, int, error) {
	start, end := r.Start, r.End
	switch {
	case start >= 0 && start <= end:
	case start < 0 && end <= 0:
		start += n
		if end == 0 {
			end = n
		} else {
			end += n
		}
	default:
		return 0, 0, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, r.Start, r.End)
	}
	if start < 0 || end > n || start > end {
		return 0, 0, fmt.Errorf("%w: [%d, %d) does not fit %d lines", ErrInvalidRange, r.Start, r.End, n)
	}
	return start, end, nil
}

// Delete removes the lines in r.
func (e *TextEditor) Delete(r Range) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start, end, err := normalize(r, len(e.lines))
	if err != nil {
		return err
	}
	e.lines = append(e.lines[:start:start], e.lines[end:]...)
	return nil
}

// Replace deletes the lines in r and inserts text at the start of the range.
func (e *TextEditor) Replace(text string, r Range) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start, end, err := normalize(r, len(e.lines))
	if err != nil {
		return err
	}
	e.lines = append(e.lines[:start:start], e.lines[end:]...)
	return e.insert(text, start)
}

// KeepLast drops the oldest lines so that at most n remain.
func (e *TextEditor) KeepLast(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n < 0 || len(e.lines) <= n {
		return
	}
	e.lines = append([]string(nil), e.lines[len(e.lines)-n:]...)
}

// Reset empties the buffer.
func (e *TextEditor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = nil
}

// Len returns the number of lines.
func (e *TextEditor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lines)
}

// Lines returns a copy of the buffer.
func (e *TextEditor) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.lines))
	copy(out, e.lines)
	return out
}

// String renders "<n>: <line>\n" for every line, numbered from 1.
func (e *TextEditor) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var b strings.Builder
	for i, l := range e.lines {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(": ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
