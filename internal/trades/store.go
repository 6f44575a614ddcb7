package trades

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ErrUnavailable indicates the trade source could not be reached. It is
// fatal for the current batch run; previously computed output stays intact.
var ErrUnavailable = errors.New("trade source unavailable")

const (
	timestampLayout = time.RFC3339
	dateLayout      = "2006-01-02"
)

var csvHeader = []string{
	"trade_id", "instrument_id", "rating", "maturity_date",
	"trade_ts", "quantity", "price", "buyer_cp", "seller_cp",
}

// Store is an append-only CSV-backed table of raw trade events keyed by an
// auto-incrementing trade ID.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	nextID int64 // 0 until first use
}

// NewStore creates a store backed by the given CSV file. The file is created
// lazily on first append.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Append validates and appends events to the store, assigning trade IDs.
// Returns the number of events written.
func (s *Store) Append(ctx context.Context, events []TradeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	for i, e := range events {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("invalid trade event at index %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextID == 0 {
		maxID, err := s.scanMaxID()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s.nextID = maxID + 1
	}

	writeHeader := false
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		writeHeader = true
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	for i := range events {
		events[i].TradeID = s.nextID
		s.nextID++
		if err := w.Write(formatEvent(events[i])); err != nil {
			return 0, fmt.Errorf("write trade %d: %w", events[i].TradeID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush trades: %w", err)
	}

	s.logger.InfoContext(ctx, "appended trade events",
		"path", s.path,
		"count", len(events),
	)

	return len(events), nil
}

// LoadAll reads every trade event, ordered by instrument then timestamp.
// A missing file is treated as an empty table, not an error.
func (s *Store) LoadAll(ctx context.Context) ([]TradeEvent, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(csvHeader)

	var events []TradeEvent
	skipped := 0
	line := 0

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			skipped++
			continue
		}
		if line == 1 && record[0] == "trade_id" {
			continue // header
		}

		event, err := parseEvent(record)
		if err != nil {
			skipped++
			s.logger.WarnContext(ctx, "skipping malformed trade row",
				"line", line,
				"error", err,
			)
			continue
		}
		events = append(events, event)
	}

	if skipped > 0 {
		s.logger.WarnContext(ctx, "skipped malformed trade rows",
			"path", s.path,
			"skipped", skipped,
		)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].InstrumentID != events[j].InstrumentID {
			return events[i].InstrumentID < events[j].InstrumentID
		}
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].TradeID < events[j].TradeID
	})

	return events, nil
}

// scanMaxID reads the current maximum trade ID from the store file
func (s *Store) scanMaxID() (int64, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	var maxID int64
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(record) == 0 {
			continue
		}
		if id, err := strconv.ParseInt(record[0], 10, 64); err == nil && id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}

func formatEvent(e TradeEvent) []string {
	return []string{
		strconv.FormatInt(e.TradeID, 10),
		e.InstrumentID,
		e.Rating,
		e.MaturityDate.Format(dateLayout),
		e.Timestamp.Format(timestampLayout),
		strconv.FormatFloat(e.Quantity, 'f', -1, 64),
		strconv.FormatFloat(e.Price, 'f', -1, 64),
		e.BuyerCP,
		e.SellerCP,
	}
}

func parseEvent(record []string) (TradeEvent, error) {
	var e TradeEvent

	id, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return e, fmt.Errorf("parse trade_id %q: %w", record[0], err)
	}
	maturity, err := time.Parse(dateLayout, record[3])
	if err != nil {
		return e, fmt.Errorf("parse maturity_date %q: %w", record[3], err)
	}
	ts, err := time.Parse(timestampLayout, record[4])
	if err != nil {
		return e, fmt.Errorf("parse trade_ts %q: %w", record[4], err)
	}
	qty, err := strconv.ParseFloat(record[5], 64)
	if err != nil {
		return e, fmt.Errorf("parse quantity %q: %w", record[5], err)
	}
	price, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return e, fmt.Errorf("parse price %q: %w", record[6], err)
	}

	e = TradeEvent{
		TradeID:      id,
		InstrumentID: record[1],
		Rating:       record[2],
		MaturityDate: maturity,
		Timestamp:    ts,
		Quantity:     qty,
		Price:        price,
		BuyerCP:      record[7],
		SellerCP:     record[8],
	}

	if err := e.Validate(); err != nil {
		return e, fmt.Errorf("invalid trade row: %w", err)
	}
	return e, nil
}
