package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"cryptoPaperTrader/internal/domain"
)

var tickHeader = []string{"timestamp", "market_id", "bid", "ask"}

// TickWriter appends ticks to a CSV stream.
type TickWriter struct {
	w      *csv.Writer
	header bool
}

// NewTickWriter creates a writer. The header is written with the first tick.
func NewTickWriter(w io.Writer) *TickWriter {
	return &TickWriter{w: csv.NewWriter(w)}
}

// Write appends one tick.
func (tw *TickWriter) Write(t domain.Tick) error {
	if !tw.header {
		if err := tw.w.Write(tickHeader); err != nil {
			return err
		}
		tw.header = true
	}
	return tw.w.Write([]string{
		strconv.FormatFloat(t.Timestamp, 'f', -1, 64),
		t.MarketID,
		strconv.FormatFloat(t.Bid, 'f', -1, 64),
		strconv.FormatFloat(t.Ask, 'f', -1, 64),
	})
}

// Flush writes any buffered data.
func (tw *TickWriter) Flush() error {
	tw.w.Flush()
	return tw.w.Error()
}

// WriteTicksCSV writes ticks with a header line.
func WriteTicksCSV(w io.Writer, ticks []domain.Tick) error {
	tw := NewTickWriter(w)
	for _, t := range ticks {
		if err := tw.Write(t); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// ReadTicksCSV reads ticks written by WriteTicksCSV, calling fn for each in file order.
func ReadTicksCSV(r io.Reader, fn func(domain.Tick) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(tickHeader)

	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line++
		if line == 1 && rec[0] == tickHeader[0] {
			continue
		}

		t, err := parseTick(rec)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(t); err != nil {
			return err
		}
	}
}

func parseTick(rec []string) (domain.Tick, error) {
	ts, err := strconv.ParseFloat(rec[0], 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("timestamp '%s': %w", rec[0], err)
	}
	bid, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("bid '%s': %w", rec[2], err)
	}
	ask, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("ask '%s': %w", rec[3], err)
	}
	return domain.Tick{MarketID: rec[1], Timestamp: ts, Bid: bid, Ask: ask}, nil
}
