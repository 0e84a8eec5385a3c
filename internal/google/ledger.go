package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName = "Bookings"
	lastColumn       = "K"
	timestampLayout  = "2006-01-02 15:04:05"
)

var ledgerHeaders = []interface{}{
	"ID", "Property ID", "User ID", "Check-in", "Check-out", "Nights", "Guests", "Total", "Status", "Created At", "Updated At",
}

var errRowNotFound = errors.New("booking row not found")

// LedgerClient keeps one spreadsheet row per booking, keyed by the booking id in column A.
type LedgerClient struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

// NewLedgerClient authenticates with a service account key file.
func NewLedgerClient(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*LedgerClient, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return NewLedgerClientWithService(srv, spreadsheetID, sheetName), nil
}

func NewLedgerClientWithService(srv *sheets.Service, spreadsheetID, sheetName string) *LedgerClient {
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &LedgerClient{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[int64]int),
	}
}

// ServiceAccountEmail returns the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// TestConnection reads the header cell of the ledger sheet.
func (c *LedgerClient) TestConnection(ctx context.Context) error {
	_, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, c.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles into row 1.
func (c *LedgerClient) EnsureHeader(ctx context.Context) error {
	rangeData := fmt.Sprintf("%s!A1:%s1", c.sheetName, lastColumn)
	_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{ledgerHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (c *LedgerClient) WarmUpCache(ctx context.Context) error {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, c.idColumn()).Context(ctx).Do()
	if err != nil {
		return err
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.rowCache = make(map[int64]int)
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok {
			c.rowCache[id] = i + 1
		}
	}
	return nil
}

// UpsertBooking updates the booking's row or appends one if the booking is new to the ledger.
func (c *LedgerClient) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}

	rowIdx, err := c.FindBookingRow(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return c.appendBooking(ctx, booking)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, rowIdx, lastColumn, rowIdx)
	_, err = c.service.Spreadsheets.Values.Update(c.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (c *LedgerClient) appendBooking(ctx context.Context, booking *models.Booking) error {
	resp, err := c.service.Spreadsheets.Values.Append(c.spreadsheetID, c.idColumn(), &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			c.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// FindBookingRow locates the 1-based row of bookingID, scanning column A on a cache miss.
func (c *LedgerClient) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID == 0 {
		return 0, errors.New("booking id is required")
	}
	if row, ok := c.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, c.idColumn()).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok && id == bookingID {
			rowIdx := i + 1 // sheet rows are 1-based
			c.setCachedRow(bookingID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, errRowNotFound
}

// ClearCache clears the row index cache.
func (c *LedgerClient) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.rowCache = make(map[int64]int)
}

func (c *LedgerClient) idColumn() string {
	return c.sheetName + "!A:A"
}

func (c *LedgerClient) getCachedRow(id int64) (int, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	row, ok := c.rowCache[id]
	return row, ok
}

func (c *LedgerClient) setCachedRow(id int64, row int) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.rowCache[id] = row
}

func cellID(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	var id int64
	switch v := row[0].(type) {
	case float64:
		id = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		id = parsed
	}
	return id, id > 0
}

// rowFromRange extracts the first row number from an A1 range such as "Bookings!A10:K10".
func rowFromRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ$")
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return 0, false
	}
	return row, true
}

func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.PropertyID,
		b.UserID,
		b.CheckIn.Format(models.DateLayout),
		b.CheckOut.Format(models.DateLayout),
		b.Nights,
		b.Guests,
		b.TotalPrice,
		string(b.Status),
		formatTimestamp(b.CreatedAt),
		formatTimestamp(b.UpdatedAt),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

var _ domain.LedgerWriter = (*LedgerClient)(nil)
