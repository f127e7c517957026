package knowledge

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
)

// SourceKind classifies an ingestion source
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
	SourceText SourceKind = "text"
)

// DetectSourceKind sniffs whether the source is a URL, an existing file
// path, or raw text
func DetectSourceKind(source string) SourceKind {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return SourceURL
	}
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		return SourceFile
	}
	return SourceText
}

// Extractor converts a source into plain text. Rich formats (PDF, DOC,
// media) plug in through this interface.
type Extractor interface {
	Extract(ctx context.Context, source string) (string, error)
}

// FileExtractor reads local files, converting structured formats to plain
// text by extension
type FileExtractor struct{}

// Extract implements Extractor.Extract
func (e *FileExtractor) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return htmlToText(strings.NewReader(string(data)))
	case ".csv":
		return csvToText(string(data))
	case ".json":
		return jsonToText(data)
	default:
		// .txt, .md and unknown extensions pass through as-is
		return string(data), nil
	}
}

// URLExtractor fetches web pages, honoring robots.txt, and strips HTML
// down to readable text
type URLExtractor struct {
	Client    *http.Client
	UserAgent string
}

// NewURLExtractor creates a URL extractor with sane defaults
func NewURLExtractor() *URLExtractor {
	return &URLExtractor{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "crewkit-knowledge/1.0",
	}
}

// Extract implements Extractor.Extract
func (e *URLExtractor) Extract(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %s: %w", rawURL, err)
	}

	allowed, err := e.robotsAllowed(ctx, parsed)
	if err == nil && !allowed {
		return "", fmt.Errorf("robots.txt disallows fetching %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", e.UserAgent)

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		return htmlToText(resp.Body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

// robotsAllowed checks the site's robots.txt for our user agent
func (e *URLExtractor) robotsAllowed(ctx context.Context, u *url.URL) (bool, error) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true, err
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return true, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, err
	}

	robots, err := robotstxt.FromBytes(data)
	if err != nil {
		return true, err
	}
	return robots.TestAgent(u.Path, e.UserAgent), nil
}

// htmlToText strips markup and boilerplate from an HTML document
func htmlToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, noscript, nav, footer").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// csvToText renders CSV rows as "header: value" lines so row content stays
// searchable
func csvToText(data string) (string, error) {
	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}

	header := rows[0]
	var sb strings.Builder
	for _, row := range rows[1:] {
		var fields []string
		for i, value := range row {
			name := fmt.Sprintf("col%d", i)
			if i < len(header) {
				name = header[i]
			}
			fields = append(fields, fmt.Sprintf("%s: %s", name, value))
		}
		sb.WriteString(strings.Join(fields, ", "))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// jsonToText flattens a JSON document into indented plain text
func jsonToText(data []byte) (string, error) {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return "", fmt.Errorf("failed to parse json: %w", err)
	}

	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}
