// File: internal/mcp/recall.go
package mcp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

const (
	defaultRecallLimit = 50
	maxRecallLimit     = 500
)

// errRecallParams marks a caller mistake in a recall query.
var errRecallParams = errors.New("invalid recall query")

// QueryService answers recall queries against the message archive.
type QueryService struct {
	archive memory.Archive
	log     *zap.Logger
}

// NewQueryService creates a QueryService. A nil archive makes every query
// fail with a service-unavailable error.
func NewQueryService(archive memory.Archive, logger *zap.Logger) *QueryService {
	if archive == nil {
		logger.Warn("QueryService initialized without an archive. Recall queries will fail.")
	}
	return &QueryService{
		archive: archive,
		log:     logger.Named("mcp_query_service"),
	}
}

// Available reports whether an archive is attached.
func (s *QueryService) Available() bool { return s.archive != nil }

// Query runs a text search when params carry a query and a date range
// search otherwise.
func (s *QueryService) Query(ctx context.Context, params RecallParams) ([]memory.Message, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("recall archive not available")
	}

	if params.Query != "" {
		limit := params.Limit
		switch {
		case limit <= 0:
			limit = defaultRecallLimit
		case limit > maxRecallLimit:
			limit = maxRecallLimit
		}
		if params.Page < 0 {
			return nil, fmt.Errorf("%w: page must not be negative", errRecallParams)
		}
		msgs, err := s.archive.TextSearch(ctx, params.Query, params.Page, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to search recall memory: %w", err)
		}
		return msgs, nil
	}

	if params.From.IsZero() || params.To.IsZero() {
		return nil, fmt.Errorf("%w: either q or both from and to are required", errRecallParams)
	}
	if params.To.Before(params.From) {
		return nil, fmt.Errorf("%w: to is before from", errRecallParams)
	}
	msgs, err := s.archive.DateSearch(ctx, params.From, params.To)
	if err != nil {
		return nil, fmt.Errorf("failed to search recall memory by date: %w", err)
	}
	s.log.Debug("Recall date search.", zap.Time("from", params.From), zap.Time("to", params.To), zap.Int("count", len(msgs)))
	return msgs, nil
}
