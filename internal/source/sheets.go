package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"surveyetl/internal/logging"
	"surveyetl/internal/metrics"
	"surveyetl/internal/survey"
)

const (
	sheetsBaseURL        = "https://docs.google.com/spreadsheets/d/"
	defaultSheetsTimeout = 30 * time.Second
	sheetsUserAgent      = "surveyetl/1.0"
)

// Sheets downloads one worksheet of a Google Sheets document.
//
// The document must be shared by link (format "csv") or published to the web
// (format "html"). Authenticated access is left to whoever shares the sheet.
type Sheets struct {
	SheetID string
	// GID selects the worksheet; "" is the first one ("0").
	GID string
	// Format is "csv" (default) or "html".
	Format string
	// URL replaces the derived export URL when set.
	URL     string
	Timeout time.Duration

	// Client defaults to an http.Client with Timeout.
	Client *http.Client
	Log    *zap.Logger
}

// ExportURL returns the public export endpoint for a worksheet.
func ExportURL(sheetID, gid, format string) string {
	if gid == "" {
		gid = "0"
	}
	base := sheetsBaseURL + url.PathEscape(sheetID)
	if strings.EqualFold(format, "html") {
		return base + "/pubhtml?gid=" + url.QueryEscape(gid) + "&single=true"
	}
	return base + "/export?format=csv&gid=" + url.QueryEscape(gid)
}

func (s *Sheets) format() string {
	if s.Format == "" {
		return "csv"
	}
	return strings.ToLower(s.Format)
}

func (s *Sheets) endpoint() string {
	if s.URL != "" {
		return s.URL
	}
	return ExportURL(s.SheetID, s.GID, s.format())
}

func (s *Sheets) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultSheetsTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Read fetches the worksheet and parses it. There are no retries.
func (s *Sheets) Read(ctx context.Context) (survey.RawTable, error) {
	log := logging.OrNop(s.Log)
	rawURL := s.endpoint()

	body, contentType, err := s.fetch(ctx, rawURL)
	if err != nil {
		return survey.RawTable{}, err
	}

	var t survey.RawTable
	switch s.format() {
	case "csv":
		// Private documents answer the CSV export with a 200 sign-in page.
		if mt, _, _ := mime.ParseMediaType(contentType); mt == "text/html" {
			return survey.RawTable{}, fmt.Errorf("sheets: %s returned an HTML page; is the sheet shared by link?", rawURL)
		}
		t, err = ReadCSV(bytes.NewReader(body), CSVOptions{})
	case "html":
		var r io.Reader
		if r, err = charset.NewReader(bytes.NewReader(body), contentType); err == nil {
			t, err = ReadHTMLTable(r)
		}
	default:
		return survey.RawTable{}, fmt.Errorf("sheets: unsupported format %q", s.Format)
	}
	if err != nil {
		return survey.RawTable{}, fmt.Errorf("sheets: %w", err)
	}

	log.Info("fetched sheet",
		zap.String("url", rawURL),
		zap.Int("columns", len(t.Headers)),
		zap.Int("rows", len(t.Rows)))
	return t, nil
}

func (s *Sheets) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("sheets: build request: %w", err)
	}
	req.Header.Set("User-Agent", sheetsUserAgent)

	resp, err := s.client().Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(start), 0)
		return nil, "", fmt.Errorf("sheets: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.RecordHTTP(resp.StatusCode, nil, time.Since(start), 0)
		return nil, "", fmt.Errorf("sheets: get %s: unexpected status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(resp.StatusCode, err, time.Since(start), int64(len(body)))
	if err != nil {
		return nil, "", fmt.Errorf("sheets: read body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
