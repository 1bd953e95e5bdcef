package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrInvalidThresholds is returned when trigger > target > 0 does not hold.
	ErrInvalidThresholds = errors.New("trigger threshold must be greater than target threshold, which must be greater than 0")
	// ErrInvalidCapacity is returned for a non-positive max size.
	ErrInvalidCapacity = errors.New("max size must be positive")
	// ErrPositionOutOfRange is returned by Replace for the head slot or any
	// index at or beyond the queue length.
	ErrPositionOutOfRange = errors.New("position out of range")
)

// Options sizes a FIFO working memory.
type Options struct {
	MaxSize          int
	TriggerThreshold float64
	TargetThreshold  float64
	Logger           *zap.Logger
}

// DefaultOptions returns a 2048 budget that starts evicting at 80% and
// drains down to 50%.
func DefaultOptions() Options {
	return Options{MaxSize: 2048, TriggerThreshold: 0.8, TargetThreshold: 0.5}
}

type entry struct {
	msg  Message
	size int
}

// FIFO is a message queue whose running size is kept under a budget. Once an
// insert pushes the size to the trigger boundary, messages are popped from the
// head until the size drops to the target boundary, and the popped messages
// are replaced by a single system summary at the head.
type FIFO struct {
	mu        sync.Mutex
	tokenize  Tokenizer
	summarize Summarizer
	logger    *zap.Logger

	maxSize int
	trigger float64
	target  float64

	entries []entry
	size    int
}

// NewFIFO validates the thresholds and returns an empty memory.
func NewFIFO(tokenize Tokenizer, summarize Summarizer, opts Options) (*FIFO, error) {
	if tokenize == nil || summarize == nil {
		return nil, errors.New("tokenizer and summarizer are required")
	}
	if opts.MaxSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, opts.MaxSize)
	}
	if !(opts.TriggerThreshold > opts.TargetThreshold && opts.TargetThreshold > 0) {
		return nil, fmt.Errorf("%w: trigger=%v target=%v", ErrInvalidThresholds, opts.TriggerThreshold, opts.TargetThreshold)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FIFO{
		tokenize:  tokenize,
		summarize: summarize,
		logger:    logger.Named("working_memory"),
		maxSize:   opts.MaxSize,
		trigger:   opts.TriggerThreshold,
		target:    opts.TargetThreshold,
	}, nil
}

// Insert appends msg and, if the trigger boundary is reached, evicts and
// summarizes from the head. The just-inserted message is never evicted, so a
// single oversized message can leave the memory over budget.
//
// If the summarizer fails the evicted messages are put back and the error is
// returned; the memory is then exactly as it was after the append.
func (f *FIFO) Insert(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.push(entry{msg: msg, size: f.tokenize(msg.String())})
	if float64(f.size) < float64(f.maxSize)*f.trigger {
		return nil
	}

	targetSize := float64(f.maxSize) * f.target
	var popped []entry
	for float64(f.size) > targetSize && len(f.entries) > 1 {
		head := f.entries[0]
		f.entries = f.entries[1:]
		f.size -= head.size
		popped = append(popped, head)
	}
	if len(popped) == 0 {
		return nil
	}

	evicted := make([]Message, len(popped))
	for i, e := range popped {
		evicted[i] = e.msg
	}
	text, err := f.summarize(ctx, evicted)
	if err != nil {
		f.entries = append(popped, f.entries...)
		for _, e := range popped {
			f.size += e.size
		}
		return fmt.Errorf("failed to summarize %d evicted messages: %w", len(popped), err)
	}

	summary := Message{Role: RoleSystem, Content: text, Timestamp: evicted[len(evicted)-1].Timestamp}
	se := entry{msg: summary, size: f.tokenize(summary.String())}
	f.entries = append([]entry{se}, f.entries...)
	f.size += se.size

	f.logger.Debug("Evicted messages into summary.",
		zap.Int("evicted", len(popped)),
		zap.Int("summary_size", se.size),
		zap.Int("size", f.size))
	return nil
}

func (f *FIFO) push(e entry) {
	f.entries = append(f.entries, e)
	f.size += e.size
}

// Replace overwrites the message at pos. The head slot is reserved for the
// summary, so pos must satisfy 0 < pos < Len().
func (f *FIFO) Replace(msg Message, pos int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pos <= 0 || pos >= len(f.entries) {
		return fmt.Errorf("%w: %d not in (0, %d)", ErrPositionOutOfRange, pos, len(f.entries))
	}
	e := entry{msg: msg, size: f.tokenize(msg.String())}
	f.size += e.size - f.entries[pos].size
	f.entries[pos] = e
	return nil
}

// Reset empties the memory.
func (f *FIFO) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
	f.size = 0
}

// Size is the running token estimate of all stored entries.
func (f *FIFO) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Len is the number of stored messages, summary included.
func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Messages returns a copy of the stored messages, oldest first.
func (f *FIFO) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.msg
	}
	return out
}

// String renders every message, oldest first, newline separated.
func (f *FIFO) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := make([]string, len(f.entries))
	for i, e := range f.entries {
		parts[i] = e.msg.String()
	}
	return strings.Join(parts, "\n")
}

// sumSizes recomputes the size from scratch. Tests use it to check the
// running estimate.
func (f *FIFO) sumSizes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, e := range f.entries {
		total += e.size
	}
	return total
}
