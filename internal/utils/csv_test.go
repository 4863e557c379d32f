package utils

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/domain"
)

func TestEquityCSV_FileRoundTrip(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	snaps := []domain.EquitySnapshot{
		domain.NewEquitySnapshot("pf-1", t0, decimal.RequireFromString("9000"), decimal.RequireFromString("1000.5")),
		domain.NewEquitySnapshot("pf-1", t0.Add(24*time.Hour), decimal.RequireFromString("9000"), decimal.RequireFromString("1100")),
	}

	filename := filepath.Join(t.TempDir(), "equity.csv")
	require.NoError(t, WriteEquityToCSV(snaps, filename))

	got, err := ReadEquityFromCSV(filename)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Equal(t0))
	assert.Equal(t, "10000.5", got[0].TotalEquity.String())
	assert.Equal(t, "10100", got[1].TotalEquity.String())
}

func TestWriteEquity_Header(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEquity(&buf, nil))
	assert.Equal(t, "timestamp,portfolio_id,cash_balance,positions_value,total_equity\n", buf.String())
}

func TestReadEquity_InvalidRows(t *testing.T) {
	_, err := ReadEquity(strings.NewReader("timestamp,portfolio_id,cash_balance,positions_value,total_equity\nyesterday,pf,1,2,3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	_, err = ReadEquity(strings.NewReader("a,b\n1,2\n"))
	require.Error(t, err)
}

func TestBenchmarkCSV_FileRoundTrip(t *testing.T) {
	points := []domain.BenchmarkPoint{
		{Symbol: "BTCUSDT", Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Close: decimal.RequireFromString("61000.1")},
		{Symbol: "BTCUSDT", Time: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Close: decimal.RequireFromString("62000")},
	}
	filename := filepath.Join(t.TempDir(), "bench.csv")
	require.NoError(t, WriteBenchmarkToCSV(points, filename))

	got, err := ReadBenchmarkFromCSV(filename)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BTCUSDT", got[1].Symbol)
	assert.Equal(t, "61000.1", got[0].Close.String())
	assert.True(t, got[1].Time.Equal(points[1].Time))
}
