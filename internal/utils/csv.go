package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
)

var (
	equityHeader    = []string{"timestamp", "portfolio_id", "cash_balance", "positions_value", "total_equity"}
	benchmarkHeader = []string{"date", "symbol", "close"}
)

// WriteEquityToCSV writes an equity curve to filename, one snapshot per row.
func WriteEquityToCSV(snaps []domain.EquitySnapshot, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteEquity(file, snaps)
}

// WriteEquity writes an equity curve as CSV to w.
func WriteEquity(w io.Writer, snaps []domain.EquitySnapshot) error {
	writer := csv.NewWriter(w)

	// Write header
	if err := writer.Write(equityHeader); err != nil {
		return err
	}

	for _, s := range snaps {
		if err := writer.Write([]string{
			s.Timestamp.UTC().Format(time.RFC3339),
			s.PortfolioID,
			s.CashBalance.String(),
			s.PositionsMarketValue.String(),
			s.TotalEquity.String(),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadEquityFromCSV reads an equity curve written by WriteEquityToCSV.
func ReadEquityFromCSV(filename string) ([]domain.EquitySnapshot, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadEquity(file)
}

// ReadEquity parses an equity CSV. TotalEquity is recomputed from its parts.
func ReadEquity(r io.Reader) ([]domain.EquitySnapshot, error) {
	rows, err := readRows(r, len(equityHeader))
	if err != nil {
		return nil, err
	}

	snaps := make([]domain.EquitySnapshot, 0, len(rows))
	for i, row := range rows {
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid timestamp %q: %w", i+2, row[0], err)
		}
		cash, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid cash_balance %q: %w", i+2, row[2], err)
		}
		positions, err := decimal.NewFromString(row[3])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid positions_value %q: %w", i+2, row[3], err)
		}
		snaps = append(snaps, domain.NewEquitySnapshot(row[1], ts, cash, positions))
	}
	return snaps, nil
}

// WriteBenchmarkToCSV writes benchmark closes to filename.
func WriteBenchmarkToCSV(points []domain.BenchmarkPoint, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(benchmarkHeader); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{p.Time.UTC().Format(time.DateOnly), p.Symbol, p.Close.String()}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBenchmarkFromCSV reads benchmark closes written by WriteBenchmarkToCSV.
func ReadBenchmarkFromCSV(filename string) ([]domain.BenchmarkPoint, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rows, err := readRows(file, len(benchmarkHeader))
	if err != nil {
		return nil, err
	}

	points := make([]domain.BenchmarkPoint, 0, len(rows))
	for i, row := range rows {
		day, err := time.Parse(time.DateOnly, row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q: %w", i+2, row[0], err)
		}
		closePrice, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid close %q: %w", i+2, row[2], err)
		}
		points = append(points, domain.BenchmarkPoint{Symbol: row[1], Time: day, Close: closePrice})
	}
	return points, nil
}

// readRows returns the data rows of a CSV with a header line and a fixed column count.
func readRows(r io.Reader, columns int) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = columns
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}
