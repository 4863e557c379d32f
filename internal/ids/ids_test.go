package ids

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTradeID_Monotonic(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	prev, err := NewTradeID(at)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		next, err := NewTradeID(at)
		require.NoError(t, err)
		require.Len(t, next, 26)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestNewTradeID_StampedWithCommitTime(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))
	id, err := NewTradeID(at)
	require.NoError(t, err)

	parsed, err := ulid.ParseStrict(id)
	require.NoError(t, err)
	assert.True(t, ulid.Time(parsed.Time()).Equal(at), "id time %s, want %s", ulid.Time(parsed.Time()), at)
}

func TestNewPortfolioID(t *testing.T) {
	a, b := NewPortfolioID(), NewPortfolioID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
