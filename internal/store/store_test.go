package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*RecallStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func fixedIDs(t *testing.T) {
	t.Helper()
	orig := uuidNewString
	n := 0
	uuidNewString = func() string {
		n++
		return "00000000-0000-0000-0000-00000000000" + string(rune('0'+n))
	}
	t.Cleanup(func() { uuidNewString = orig })
}

func TestNew(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateRecall)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	fixedIDs(t)
	s, mockPool := newMockStore(t, zap.NewNop())
	stamp := time.Date(2024, 5, 1, 15, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRecall)).
		WithArgs("00000000-0000-0000-0000-000000000001", "run-7", "user", "Hello", stamp.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.WithRunID("run-7").Insert(context.Background(), memory.Message{Role: memory.RoleUser, Content: "Hello", Timestamp: stamp})
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestInsert_Error(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	dbErr := errors.New("disk full")
	mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRecall)).WillReturnError(dbErr)

	err := s.Insert(context.Background(), memory.NewMessage(memory.RoleAgent, "x"))
	require.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "failed to insert recall message")
}

func TestInsertMany(t *testing.T) {
	fixedIDs(t)
	s, mockPool := newMockStore(t, zap.NewNop())
	msgs := []memory.Message{
		memory.NewMessage(memory.RoleUser, "one"),
		memory.NewMessage(memory.RoleAgent, "two"),
	}

	mockPool.ExpectCopyFrom(pgx.Identifier{"agent_recall"}, recallColumns).WillReturnResult(2)
	require.NoError(t, s.InsertMany(context.Background(), msgs))

	mockPool.ExpectCopyFrom(pgx.Identifier{"agent_recall"}, recallColumns).WillReturnResult(1)
	err := s.InsertMany(context.Background(), msgs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2, got 1")

	require.NoError(t, s.InsertMany(context.Background(), nil))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestBuildTextSearch(t *testing.T) {
	sql, args := buildTextSearch([]string{"hello", "50%_off"}, 2, 5)
	assert.Equal(t,
		"SELECT role, content, created_at FROM agent_recall WHERE content ILIKE $1 AND content ILIKE $2 ORDER BY created_at ASC LIMIT $3 OFFSET $4",
		sql)
	assert.Equal(t, []any{"%hello%", `%50\%\_off%`, 5, 10}, args)
}

func TestTextSearch(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	stamp := time.Date(2024, 5, 1, 15, 35, 30, 0, time.UTC)

	sql, _ := buildTextSearch([]string{"hello"}, 1, 1)
	mockPool.ExpectQuery(regexp.QuoteMeta(sql)).
		WithArgs("%hello%", 1, 1).
		WillReturnRows(pgxmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow("user", "Hello. How is the weather?", stamp))

	msgs, err := s.TextSearch(context.Background(), "hello", 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, memory.Message{Role: memory.RoleUser, Content: "Hello. How is the weather?", Timestamp: stamp}, msgs[0])

	msgs, err = s.TextSearch(context.Background(), "   ", 0, 5)
	require.NoError(t, err)
	assert.Nil(t, msgs, "an empty query never reaches the database")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestDateSearch(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	from := time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlDateSearch)).
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow("agent", "World", from.Add(15*time.Hour)).
			AddRow("user", "Hello", from.Add(39*time.Hour)))

	msgs, err := s.DateSearch(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, memory.RoleAgent, msgs[0].Role)
	assert.True(t, msgs[0].Timestamp.Before(msgs[1].Timestamp))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestDateSearch_ScanError(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlDateSearch)).
		WillReturnRows(pgxmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow("agent", "World", "not a time"))

	_, err := s.DateSearch(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan recall row")
}

func TestLenAndReset(t *testing.T) {
	observedCore, logs := observer.New(zapcore.InfoLevel)
	s, mockPool := newMockStore(t, zap.New(observedCore))

	mockPool.ExpectQuery(regexp.QuoteMeta(sqlCountRecall)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))
	n, err := s.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	mockPool.ExpectExec(regexp.QuoteMeta(sqlDeleteRecall)).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	require.NoError(t, s.Reset(context.Background()))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(4), logs.All()[0].ContextMap()["deleted"])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
