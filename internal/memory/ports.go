package memory

import (
	"context"
	"strings"
)

// Tokenizer estimates the size of a rendered message. It must be pure.
type Tokenizer func(text string) int

// Summarizer compresses evicted messages, oldest first, into a single text.
type Summarizer func(ctx context.Context, evicted []Message) (string, error)

// WordCount is a Tokenizer that counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ApproxTokens is a Tokenizer using the common four-characters-per-token
// estimate, rounded up.
func ApproxTokens(text string) int {
	return (len(text) + 3) / 4
}
