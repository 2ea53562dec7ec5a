// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// dblpAPIBase is the DBLP publication search endpoint. Declared as a var
// so tests can substitute an httptest server.
var dblpAPIBase = "https://dblp.org/search/publ/api"

const defaultPageSize = 100

// DBLPProvider lists conference papers through the DBLP search API. Only
// "Conference and Workshop Papers" whose electronic edition points at
// openreview.net are emitted; the forum link is rewritten to the PDF
// download link.
type DBLPProvider struct {
	Client    *http.Client
	Query     string
	PageSize  int
	UserAgent string
}

// Name returns the provider identifier.
func (p *DBLPProvider) Name() string { return "dblp" }

// DBLP search API JSON structures.
type dblpResponse struct {
	Result dblpResult `json:"result"`
}

type dblpResult struct {
	Hits dblpHits `json:"hits"`
}

type dblpHits struct {
	Hit []dblpHit `json:"hit"`
}

type dblpHit struct {
	Info dblpInfo `json:"info"`
}

type dblpInfo struct {
	Title string `json:"title"`
	Type  string `json:"type"`
	EE    string `json:"ee"`
}

// Page fetches one page of search results. Pages are addressed by result
// offset (page * PageSize); a page shorter than PageSize signals the end
// of the listing.
func (p *DBLPProvider) Page(ctx context.Context, page int) ([]Entry, bool, error) {
	size := p.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	params := url.Values{
		"q":      {p.Query},
		"format": {"json"},
		"h":      {strconv.Itoa(size)},
		"f":      {strconv.Itoa(page * size)},
	}
	reqURL := dblpAPIBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.UserAgent)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("DBLP API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("DBLP API returned HTTP %d", resp.StatusCode)
	}

	var dr dblpResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, false, fmt.Errorf("parsing DBLP response: %w", err)
	}

	hits := dr.Result.Hits.Hit
	entries := make([]Entry, 0, len(hits))
	for _, hit := range hits {
		e, ok := entryFromHit(hit.Info)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}

	// A short page means the listing is exhausted.
	return entries, len(hits) == size, nil
}

// entryFromHit filters and converts one DBLP hit. Non-conference entries
// and electronic editions outside openreview.net are dropped.
func entryFromHit(info dblpInfo) (Entry, bool) {
	if info.Type != "Conference and Workshop Papers" || info.EE == "" {
		return Entry{}, false
	}

	parsed, err := url.Parse(info.EE)
	if err != nil || !strings.Contains(parsed.Host, "openreview.net") {
		return Entry{}, false
	}

	id := parsed.Query().Get("id")
	if id == "" {
		id = Slug(info.Title)
	}
	if id == "" {
		return Entry{}, false
	}

	return Entry{
		ID:     id,
		Title:  strings.TrimSpace(info.Title),
		PDFURL: strings.Replace(info.EE, "/forum?id=", "/pdf?id=", 1),
	}, true
}
