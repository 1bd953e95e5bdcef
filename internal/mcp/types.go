// File: internal/mcp/types.go
package mcp

import (
	"time"

	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

// RunRequest is the body of POST /api/v1/runs.
type RunRequest struct {
	Objective string `json:"objective"`
	// Environment names a registered runner, e.g. "browser" or "terminal".
	Environment string `json:"environment"`
	// Start is the optional start URL or working directory.
	Start string `json:"start,omitempty"`
}

// CommandResponse is the envelope of every JSON API reply.
type CommandResponse struct {
	Status string      `json:"status"` // "success", "error", "accepted"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// RecallParams are the query parameters of GET /api/v1/recall. A text query
// takes precedence over a date range.
type RecallParams struct {
	Query string
	Page  int
	Limit int
	From  time.Time
	To    time.Time
}

// RecallResult is the data of a recall reply.
type RecallResult struct {
	Count    int              `json:"count"`
	Messages []memory.Message `json:"messages"`
}
