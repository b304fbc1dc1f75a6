// Package arxiv resolves paper identifiers against the arXiv export
// API and downloads the PDF.
package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when an identifier does not resolve to a
// paper with a downloadable PDF.
var ErrNotFound = errors.New("arxiv: paper not found")

// Paper is a resolved arXiv entry.
type Paper struct {
	ID     string // normalized arXiv id, e.g. "2405.16153"
	Title  string
	PDFURL string
}

// Resolver queries the arXiv Atom API.
type Resolver struct {
	baseURL string
	client  *http.Client
}

// NewResolver returns a resolver against the public export API.
// baseURL is overridable for tests.
func NewResolver(baseURL string) *Resolver {
	if baseURL == "" {
		baseURL = "https://export.arxiv.org"
	}
	return &Resolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// NormalizeID accepts a bare arXiv id or any of the common URL forms
// (abs/pdf links) and returns the bare id.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".pdf")
	return s
}

// atomFeed is the subset of the arXiv Atom response we consume.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID    string     `xml:"id"`
	Title string     `xml:"title"`
	Links []atomLink `xml:"link"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// Resolve looks up one identifier and returns the paper metadata.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Paper, error) {
	id := NormalizeID(identifier)
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	url := fmt.Sprintf("%s/api/query?id_list=%s&max_results=1", r.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv API error %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding arxiv feed: %w", err)
	}

	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry := feed.Entries[0]
	// The API answers unknown ids with an entry that has no title/links.
	title := strings.Join(strings.Fields(entry.Title), " ")
	if title == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	pdfURL := ""
	for _, l := range entry.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			pdfURL = l.Href
			break
		}
	}
	if pdfURL == "" {
		return nil, fmt.Errorf("%w: %s has no PDF link", ErrNotFound, id)
	}

	return &Paper{ID: id, Title: title, PDFURL: pdfURL}, nil
}

// Download fetches the paper's PDF into dir and returns the saved path.
func (r *Resolver) Download(ctx context.Context, paper *Paper, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", paper.PDFURL, nil)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", paper.PDFURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: PDF download returned %d", ErrNotFound, resp.StatusCode)
	}

	path := filepath.Join(dir, paper.ID+".pdf")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	slog.Info("arxiv: downloaded paper",
		"id", paper.ID, "bytes", n,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return path, nil
}
