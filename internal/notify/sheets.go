package notify

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"courtbook/internal/events"
	"courtbook/internal/models"
)

// SheetValues appends and overwrites ranges of a spreadsheet.
type SheetValues interface {
	// Append adds rows after the table in rng and returns the range written.
	Append(ctx context.Context, rng string, rows [][]interface{}) (string, error)
	Update(ctx context.Context, rng string, rows [][]interface{}) error
}

// googleValues talks to the Sheets v4 API.
type googleValues struct {
	srv           *sheets.Service
	spreadsheetID string
}

// NewGoogleValues builds a Sheets client from a service-account JSON file.
func NewGoogleValues(ctx context.Context, credentialsFile, spreadsheetID string) (SheetValues, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &googleValues{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (g *googleValues) Append(ctx context.Context, rng string, rows [][]interface{}) (string, error) {
	resp, err := g.srv.Spreadsheets.Values.Append(g.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

func (g *googleValues) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	_, err := g.srv.Spreadsheets.Values.Update(g.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// SheetHeader names the ledger columns.
var SheetHeader = []interface{}{
	"ID", "Tenant", "Branch", "Resource", "Claimant", "Start (UTC)", "End (UTC)",
	"Status", "Total", "Currency", "Updated",
}

// SheetsService keeps one spreadsheet row per booking, updated on every event.
type SheetsService struct {
	values    SheetValues
	sheetName string
	logger    zerolog.Logger

	mu       sync.RWMutex
	rowCache map[int64]int
}

func NewSheetsService(values SheetValues, sheetName string, logger zerolog.Logger) *SheetsService {
	if sheetName == "" {
		sheetName = "Bookings"
	}
	return &SheetsService{
		values:    values,
		sheetName: sheetName,
		logger:    logger.With().Str("component", "sheets").Logger(),
		rowCache:  make(map[int64]int),
	}
}

func (s *SheetsService) Name() string { return "sheets" }

// Deliver writes the booking row. Rows not seen since start-up are appended.
func (s *SheetsService) Deliver(ctx context.Context, e events.Event) error {
	values := [][]interface{}{bookingRowValues(&e.Booking)}

	if row, ok := s.getCachedRow(e.Booking.ID); ok {
		rng := fmt.Sprintf("%s!A%d:K%d", s.sheetName, row, row)
		if err := s.values.Update(ctx, rng, values); err != nil {
			s.deleteCacheRow(e.Booking.ID)
			return fmt.Errorf("update row %d: %w", row, err)
		}
		return nil
	}

	updated, err := s.values.Append(ctx, s.sheetName+"!A:K", values)
	if err != nil {
		return fmt.Errorf("append booking %d: %w", e.Booking.ID, err)
	}
	if row, ok := parseRow(updated); ok {
		s.setCachedRow(e.Booking.ID, row)
	} else {
		s.logger.Warn().Str("range", updated).Int64("booking_id", e.Booking.ID).Msg("could not parse appended range")
	}
	return nil
}

// WriteHeader overwrites the first row with SheetHeader.
func (s *SheetsService) WriteHeader(ctx context.Context) error {
	return s.values.Update(ctx, s.sheetName+"!A1:K1", [][]interface{}{SheetHeader})
}

func bookingRowValues(b *models.Booking) []interface{} {
	claimant := "user:" + b.UserID
	if b.IsGuest() {
		claimant = "guest:" + strconv.FormatInt(b.GuestID, 10)
	}
	return []interface{}{
		b.ID,
		b.TenantID,
		b.BranchID,
		b.ResourceID,
		claimant,
		b.StartAt.UTC().Format("2006-01-02 15:04"),
		b.EndAt.UTC().Format("2006-01-02 15:04"),
		string(b.Status),
		b.TotalPrice.StringFixed(2),
		b.Currency,
		b.UpdatedAt.UTC().Format(time.DateTime),
	}
}

var rangeRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// parseRow extracts the first row number from a range such as "Bookings!A5:K5".
func parseRow(rng string) (int, bool) {
	m := rangeRowRe.FindStringSubmatch(rng)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache forgets all known row positions.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[int64]int)
}
