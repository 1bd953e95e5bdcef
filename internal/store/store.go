package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var uuidNewString = uuid.NewString

const (
	sqlCreateRecall = `
        CREATE TABLE IF NOT EXISTS agent_recall (
            id         UUID PRIMARY KEY,
            run_id     TEXT NOT NULL DEFAULT '',
            role       TEXT NOT NULL,
            content    TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS agent_recall_created_at_idx ON agent_recall (created_at);
    `
	sqlInsertRecall = `
        INSERT INTO agent_recall (id, run_id, role, content, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	sqlDateSearch = `
        SELECT role, content, created_at FROM agent_recall
        WHERE created_at BETWEEN $1 AND $2
        ORDER BY created_at ASC
    `
	sqlCountRecall  = `SELECT COUNT(*) FROM agent_recall`
	sqlDeleteRecall = `DELETE FROM agent_recall`
)

var recallColumns = []string{"id", "run_id", "role", "content", "created_at"}

// RecallStore archives agent messages in PostgreSQL. It satisfies
// memory.Archive so it can stand in for the in-process archive.
type RecallStore struct {
	pool  DBPool
	log   *zap.Logger
	runID string
}

var _ memory.Archive = (*RecallStore)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*RecallStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &RecallStore{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// WithRunID returns a view of the store that tags inserted rows with runID.
func (s *RecallStore) WithRunID(runID string) *RecallStore {
	return &RecallStore{pool: s.pool, log: s.log.With(zap.String("run_id", runID)), runID: runID}
}

// EnsureSchema creates the recall table when it does not exist yet.
func (s *RecallStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateRecall); err != nil {
		return fmt.Errorf("failed to create recall schema: %w", err)
	}
	return nil
}

// Insert archives a single message.
func (s *RecallStore) Insert(ctx context.Context, msg memory.Message) error {
	_, err := s.pool.Exec(ctx, sqlInsertRecall,
		uuidNewString(), s.runID, string(msg.Role), msg.Content, msg.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert recall message: %w", err)
	}
	return nil
}

// InsertMany archives a batch of messages with a single COPY.
func (s *RecallStore) InsertMany(ctx context.Context, msgs []memory.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(msgs))
	for i, m := range msgs {
		rows[i] = []interface{}{uuidNewString(), s.runID, string(m.Role), m.Content, m.Timestamp.UTC()}
	}

	copyCount, err := s.pool.CopyFrom(ctx, pgx.Identifier{"agent_recall"}, recallColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy recall messages: %w", err)
	}
	if int(copyCount) != len(msgs) {
		return fmt.Errorf("mismatch in copied recall count: expected %d, got %d", len(msgs), copyCount)
	}
	return nil
}

// escapeLike quotes the LIKE wildcards of a literal search term.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// buildTextSearch returns the query and arguments for a paged search that
// requires every term to appear in the content.
func buildTextSearch(terms []string, page, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT role, content, created_at FROM agent_recall WHERE ")
	args := make([]any, 0, len(terms)+2)
	for i, t := range terms {
		if i > 0 {
			b.WriteString(" AND ")
		}
		args = append(args, "%"+escapeLike(t)+"%")
		fmt.Fprintf(&b, "content ILIKE $%d", len(args))
	}
	args = append(args, limit, page*limit)
	fmt.Fprintf(&b, " ORDER BY created_at ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

// TextSearch returns one page of messages containing every whitespace
// separated query term, case-insensitively.
func (s *RecallStore) TextSearch(ctx context.Context, query string, page, limit int) ([]memory.Message, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 || limit <= 0 || page < 0 {
		return nil, nil
	}
	sql, args := buildTextSearch(terms, page, limit)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search recall: %w", err)
	}
	return scanMessages(rows)
}

// DateSearch returns messages created within [from, to], oldest first.
func (s *RecallStore) DateSearch(ctx context.Context, from, to time.Time) ([]memory.Message, error) {
	rows, err := s.pool.Query(ctx, sqlDateSearch, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to search recall by date: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]memory.Message, error) {
	defer rows.Close()

	var msgs []memory.Message
	for rows.Next() {
		var (
			role string
			m    memory.Message
		)
		if err := rows.Scan(&role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan recall row: %w", err)
		}
		m.Role = memory.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recall rows: %w", err)
	}
	return msgs, nil
}

// Len counts the archived messages.
func (s *RecallStore) Len(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, sqlCountRecall).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recall messages: %w", err)
	}
	return int(n), nil
}

// Reset deletes every archived message.
func (s *RecallStore) Reset(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteRecall)
	if err != nil {
		return fmt.Errorf("failed to reset recall: %w", err)
	}
	s.log.Info("Recall archive cleared.", zap.Int64("deleted", tag.RowsAffected()))
	return nil
}
