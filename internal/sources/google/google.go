package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"schememap/internal/core"
	"schememap/internal/sources"
)

// Client reads and writes the scheme table on a Google Sheet tab.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

var (
	_ sources.SchemeReader = (*Client)(nil)
	_ sources.SchemeWriter = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SCHEMES_SHEET_NAME (default "Schemes").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheet := strings.TrimSpace(os.Getenv("GOOGLE_SCHEMES_SHEET_NAME"))
	if sheet == "" {
		sheet = "Schemes"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)
	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) Name() string { return "sheets:" + c.sheet }

// ReadSchemes reads the whole tab; the first row must be the header.
func (c *Client) ReadSchemes(ctx context.Context) ([]core.SchemeRecord, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:Z", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseValues(resp.Values)
}

// ReplaceSchemes clears the tab and writes header plus records.
func (c *Client) ReplaceSchemes(ctx context.Context, records []core.SchemeRecord) (int, error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}
	}
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:Z", c.sheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return 0, fmt.Errorf("clear %s: %w", rng, err)
	}
	vr := &gsheet.ValueRange{Values: toValues(records)}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1", c.sheet), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", c.sheet, err)
	}
	return len(records), nil
}
