// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"
)

// FeedProvider lists papers from an RSS or Atom feed, for proceedings
// sites that publish one. Feeds are a single page: everything the feed
// currently carries comes back at once.
type FeedProvider struct {
	URL    string
	parser *gofeed.Parser
}

// Name returns the provider identifier.
func (p *FeedProvider) Name() string { return "feed" }

// Page parses the feed. Only page zero yields entries.
func (p *FeedProvider) Page(ctx context.Context, page int) ([]Entry, bool, error) {
	if page > 0 {
		return nil, false, nil
	}

	if p.parser == nil {
		p.parser = gofeed.NewParser()
	}
	feed, err := p.parser.ParseURLWithContext(p.URL, ctx)
	if err != nil {
		return nil, false, fmt.Errorf("parsing feed %s: %w", p.URL, err)
	}

	var entries []Entry
	for _, item := range feed.Items {
		pdfURL := pdfLink(item)
		if pdfURL == "" {
			continue
		}
		id := idFromURL(pdfURL)
		if id == "" {
			id = Slug(item.Title)
		}
		if id == "" {
			continue
		}
		entries = append(entries, Entry{
			ID:     id,
			Title:  strings.TrimSpace(item.Title),
			PDFURL: pdfURL,
		})
	}
	return entries, false, nil
}

// pdfLink prefers a PDF enclosure, falling back to the item link when it
// points directly at a PDF.
func pdfLink(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc.Type == "application/pdf" && enc.URL != "" {
			return enc.URL
		}
	}
	if strings.HasSuffix(item.Link, ".pdf") {
		return item.Link
	}
	return ""
}

func idFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if id := parsed.Query().Get("id"); id != "" {
		return id
	}
	return Slug(strings.TrimSuffix(path.Base(parsed.Path), ".pdf"))
}
