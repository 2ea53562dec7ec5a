// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ListingProvider scrapes a plain HTML proceedings page. It collects
// every anchor pointing at a PDF, deriving the id from the target
// filename and the title from the anchor text. Pagination uses a page
// query parameter; a rel="next" link signals that more pages follow.
type ListingProvider struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
}

// Name returns the provider identifier.
func (p *ListingProvider) Name() string { return "listing" }

// Page fetches and parses one listing page.
func (p *ListingProvider) Page(ctx context.Context, page int) ([]Entry, bool, error) {
	pageURL, err := p.pageURL(page)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
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
		return nil, false, fmt.Errorf("listing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("listing returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("parsing listing page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, false, fmt.Errorf("invalid listing url %s: %w", pageURL, err)
	}

	var entries []Entry
	doc.Find(`a[href$=".pdf"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)

		id := Slug(strings.TrimSuffix(path.Base(abs.Path), ".pdf"))
		if id == "" {
			return
		}

		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = id
		}

		entries = append(entries, Entry{ID: id, Title: title, PDFURL: abs.String()})
	})

	more := doc.Find(`a[rel="next"]`).Length() > 0
	return entries, more, nil
}

func (p *ListingProvider) pageURL(page int) (string, error) {
	parsed, err := url.Parse(p.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", p.BaseURL, err)
	}
	if page > 0 {
		q := parsed.Query()
		q.Set("page", strconv.Itoa(page+1))
		parsed.RawQuery = q.Encode()
	}
	return parsed.String(), nil
}
