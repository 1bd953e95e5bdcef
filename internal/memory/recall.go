package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Archive is long-term storage for every message an agent produces. It is
// searched on demand and never feeds back into working memory on its own.
type Archive interface {
	Insert(ctx context.Context, msg Message) error
	// TextSearch returns page number page (0-based) of at most limit messages
	// containing every query term, case-insensitively, oldest first.
	TextSearch(ctx context.Context, query string, page, limit int) ([]Message, error)
	// DateSearch returns messages stamped within [from, to], oldest first.
	DateSearch(ctx context.Context, from, to time.Time) ([]Message, error)
	Len(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// Recall is the in-process Archive.
type Recall struct {
	mu       sync.RWMutex
	messages []Message
}

var _ Archive = (*Recall)(nil)

// NewRecall returns an empty in-process archive.
func NewRecall() *Recall {
	return &Recall{}
}

func (r *Recall) Insert(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// queryTerms lowercases and splits a query; an empty query matches nothing.
func queryTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func matchesAll(content string, terms []string) bool {
	content = strings.ToLower(content)
	for _, t := range terms {
		if !strings.Contains(content, t) {
			return false
		}
	}
	return true
}

func (r *Recall) TextSearch(_ context.Context, query string, page, limit int) ([]Message, error) {
	terms := queryTerms(query)
	if len(terms) == 0 || limit <= 0 || page < 0 {
		return nil, nil
	}

	r.mu.RLock()
	var hits []Message
	for _, m := range r.messages {
		if matchesAll(m.Content, terms) {
			hits = append(hits, m)
		}
	}
	r.mu.RUnlock()

	sortByTimestamp(hits)
	offset := page * limit
	if offset >= len(hits) {
		return nil, nil
	}
	return hits[offset:min(offset+limit, len(hits))], nil
}

func (r *Recall) DateSearch(_ context.Context, from, to time.Time) ([]Message, error) {
	r.mu.RLock()
	var hits []Message
	for _, m := range r.messages {
		if !m.Timestamp.Before(from) && !m.Timestamp.After(to) {
			hits = append(hits, m)
		}
	}
	r.mu.RUnlock()

	sortByTimestamp(hits)
	return hits, nil
}

func (r *Recall) Len(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages), nil
}

func (r *Recall) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
	return nil
}

func sortByTimestamp(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
