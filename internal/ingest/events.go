package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Column offsets in the events export. The export is the standard 61-column
// tab-separated event record: day in column 1 (YYYYMMDD), mention count in
// column 31, source URL in the final column.
const (
	eventColDay      = 1
	eventColMentions = 31
	eventMinColumns  = 33
)

// EventRow is one usable row from the events export.
type EventRow struct {
	URL       string
	Mentions  int
	Published time.Time
}

// EventsClient downloads and filters the events export.
type EventsClient struct {
	client    *http.Client
	userAgent string
}

// NewEventsClient creates an events export client.
func NewEventsClient(timeout time.Duration, userAgent string) *EventsClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "Factweave Events Reader/1.0"
	}
	return &EventsClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch downloads the export and returns rows whose mention count is at
// least minMentions. Malformed rows are skipped, not fatal.
func (c *EventsClient) Fetch(ctx context.Context, exportURL string, minMentions int) ([]EventRow, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create events request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events export: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("events export returned status %d", resp.StatusCode)
	}
	return ParseEvents(resp.Body, minMentions), nil
}

// ParseEvents reads tab-separated event rows and keeps those with enough
// mentions and a usable source URL.
func ParseEvents(r io.Reader, minMentions int) []EventRow {
	var rows []EventRow
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < eventMinColumns {
			continue
		}

		mentions, err := strconv.Atoi(strings.TrimSpace(fields[eventColMentions]))
		if err != nil || mentions < minMentions {
			continue
		}

		url := strings.TrimSpace(fields[len(fields)-1])
		if !strings.HasPrefix(url, "http") || seen[url] {
			continue
		}
		seen[url] = true

		rows = append(rows, EventRow{
			URL:       url,
			Mentions:  mentions,
			Published: parseEventDay(fields[eventColDay]),
		})
	}
	return rows
}

// parseEventDay parses the YYYYMMDD day column. Zero time on failure.
func parseEventDay(s string) time.Time {
	t, err := time.Parse("20060102", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
