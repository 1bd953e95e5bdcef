package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecall(t *testing.T, r Archive, stamps ...time.Time) {
	t.Helper()
	contents := []struct {
		role    Role
		content string
	}{
		{RoleUser, "Hello"},
		{RoleAgent, "World"},
		{RoleUser, "Hello. How is the weather?"},
		{RoleAgent, "Great"},
	}
	for i, c := range contents {
		require.NoError(t, r.Insert(context.Background(), Message{Role: c.role, Content: c.content, Timestamp: stamps[i]}))
	}
}

func TestRecall_TextSearch(t *testing.T) {
	ctx := context.Background()
	r := NewRecall()
	seedRecall(t, r,
		time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 15, 35, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 15, 35, 30, 0, time.UTC),
		time.Date(2024, 5, 1, 15, 35, 30, 0, time.UTC))

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	msgs, err := r.TextSearch(ctx, "weather", 0, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello. How is the weather?", msgs[0].Content)

	msgs, err = r.TextSearch(ctx, "HELLO", 0, 5)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	msgs, err = r.TextSearch(ctx, "HELLO", 12, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = r.TextSearch(ctx, "HELLO", 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello. How is the weather?", msgs[0].Content)

	msgs, err = r.TextSearch(ctx, "six flags!", 0, 5)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, r.Reset(ctx))
	n, err = r.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecall_DateSearch(t *testing.T) {
	ctx := context.Background()
	r := NewRecall()
	seedRecall(t, r,
		time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC),
		time.Date(2024, 5, 12, 15, 35, 0, 0, time.UTC),
		time.Date(2024, 5, 13, 15, 35, 30, 0, time.UTC),
		time.Date(2024, 5, 13, 15, 35, 35, 0, time.UTC))

	msgs, err := r.DateSearch(ctx, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "World", msgs[0].Content)

	msgs, err = r.DateSearch(ctx, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].Timestamp.Before(msgs[1].Timestamp))
	assert.True(t, msgs[1].Timestamp.Before(msgs[2].Timestamp))

	inclusive, err := r.DateSearch(ctx, msgs[0].Timestamp, msgs[0].Timestamp)
	require.NoError(t, err)
	assert.Len(t, inclusive, 1, "both bounds are inclusive")
}
