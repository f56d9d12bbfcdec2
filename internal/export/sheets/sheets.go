// Package sheets exports the archived history of a budget to a Google
// spreadsheet, one sheet per budget of every user.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/forecast"
)

// HistoryWriter replaces the content of a sheet with rows.
type HistoryWriter interface {
	WriteRows(ctx context.Context, sheet string, rows [][]any) error
}

type Options struct {
	SpreadsheetID string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string

	// Endpoint and HTTPClient point the client at another server; credentials
	// are not used when HTTPClient is set.
	Endpoint   string
	HTTPClient *http.Client
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ HistoryWriter = (*Client)(nil)

// NewClient creates a Sheets client authenticated with a service account.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	var clientOpts []goption.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, goption.WithHTTPClient(opts.HTTPClient))
	case opts.CredentialsJSON != "":
		clientOpts = append(clientOpts, goption.WithCredentialsJSON([]byte(opts.CredentialsJSON)))
	case opts.CredentialsFile != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		clientOpts = append(clientOpts, goption.WithCredentialsJSON(data))
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	if opts.HTTPClient == nil {
		clientOpts = append(clientOpts, goption.WithScopes(gsheet.SpreadsheetsScope))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, goption.WithEndpoint(opts.Endpoint))
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", opts.SpreadsheetID)
	return &Client{svc: svc, spreadsheetID: opts.SpreadsheetID}, nil
}

// WriteRows creates the sheet when missing, clears it and writes rows from A1.
func (c *Client) WriteRows(ctx context.Context, sheet string, rows [][]any) error {
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}
	rng := quoteSheet(sheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %q: %w", sheet, err)
	}
	vr := &gsheet.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet %q: %w", sheet, err)
	}
	return nil
}

func (c *Client) ensureSheet(ctx context.Context, sheet string) error {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range resp.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Created history sheet", "sheet", sheet)
	return nil
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// maxSheetTitle is the longest sheet title Sheets accepts.
const maxSheetTitle = 100

// SheetTitle names the history sheet of the budget stored at budget. Budget
// names repeat across users, so the title ends with a short key derived from
// the document path; the name is shortened first when the title is too long.
func SheetTitle(prefix string, budget docstore.Path, budgetName string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]*?:/\`, r) {
			return ' '
		}
		return r
	}, budgetName)
	clean = strings.Join(strings.Fields(clean), " ")
	if clean == "" {
		clean = core.UntitledBudgetName
	}
	title := clean
	if prefix != "" {
		title = prefix + " - " + clean
	}
	suffix := " (" + budgetKey(budget) + ")"
	if r := []rune(title); len(r)+len(suffix) > maxSheetTitle {
		title = strings.TrimSpace(string(r[:maxSheetTitle-len(suffix)]))
	}
	return title + suffix
}

// budgetKey is a stable eight character key for a budget document.
func budgetKey(budget docstore.Path) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(budget)).String()[:8]
}

// Rows builds the history table: one header row, then one row per archived
// period in ascending order with the income, totals and the spend of every
// category that appears in any archive.
func Rows(archives []core.ArchiveSnapshot) [][]any {
	points := forecast.History(archives)
	byPeriod := make(map[string]core.Budget, len(archives))
	for _, a := range archives {
		byPeriod[a.Period] = a.Budget
	}

	var ids, names []string
	for _, p := range points {
		for _, c := range byPeriod[p.Period].Categories {
			if !slices.Contains(ids, c.ID) {
				ids = append(ids, c.ID)
				names = append(names, c.Name)
			}
		}
	}

	header := []any{"Period", "Income", "Total Spent", "Remaining"}
	for _, n := range names {
		header = append(header, n)
	}
	rows := [][]any{header}
	for _, p := range points {
		b := byPeriod[p.Period]
		row := []any{p.Period, p.Income.StringFixed(2), p.TotalSpent.StringFixed(2), p.Remaining.StringFixed(2)}
		for _, id := range ids {
			cell := ""
			if i := b.CategoryIndex(id); i >= 0 {
				cell = b.Categories[i].Spent.StringFixed(2)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return rows
}

// Exporter writes budget histories through a HistoryWriter.
type Exporter struct {
	writer HistoryWriter
	prefix string
}

func NewExporter(w HistoryWriter, sheetPrefix string) *Exporter {
	return &Exporter{writer: w, prefix: sheetPrefix}
}

// Export replaces the history sheet of the budget stored at budget.
func (e *Exporter) Export(ctx context.Context, budget docstore.Path, budgetName string, archives []core.ArchiveSnapshot) error {
	sheet := SheetTitle(e.prefix, budget, budgetName)
	if err := e.writer.WriteRows(ctx, sheet, Rows(archives)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Exported budget history",
		"sheet", sheet,
		"doc_path", budget.String(),
		"periods", len(archives))
	return nil
}
