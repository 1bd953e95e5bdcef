// Package memory holds the conversation state the agent reasons over: a
// bounded FIFO working memory with summarize-on-evict, a line-addressed text
// editor buffer and an unbounded recall archive.
package memory

import (
	"strings"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser        Role = "user"
	RoleAgent       Role = "agent"
	RoleSystem      Role = "system"
	RoleEnvironment Role = "environment"
)

// timestampLayout renders as YYYYMMDD-HH:MM:SS.
const timestampLayout = "20060102-15:04:05"

// Message is an immutable conversation entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps content with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// String renders "[YYYYMMDD-HH:MM:SS] role: content". Continuation lines of a
// multi-line message are indented so they line up under the content column.
func (m Message) String() string {
	stamp := m.Timestamp.Format(timestampLayout)
	lines := strings.Split(m.Content, "\n")
	head := "[" + stamp + "] " + string(m.Role) + ": "
	if len(lines) == 1 {
		return head + m.Content
	}

	indent := strings.Repeat(" ", max(len(m.Role), 6)+2+len(stamp)+3)
	var b strings.Builder
	b.WriteString(head)
	b.WriteString(lines[0])
	for _, line := range lines[1:] {
		b.WriteByte('\n')
		b.WriteString(indent)
		b.WriteString(line)
	}
	return b.String()
}
