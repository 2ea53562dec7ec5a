// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package discover walks a conference listing source and yields paper
// identifiers with their metadata. It performs no deduplication and never
// touches persisted state; the pipeline driver filters against the
// catalog.
package discover

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lycheng/paperboy/internal/retry"
	"github.com/lycheng/paperboy/pkg/types"
)

// Entry is one paper as seen in the listing.
type Entry struct {
	ID     string
	Title  string
	PDFURL string
}

// Provider fetches one page of a listing. Page numbers start at zero;
// the second return value reports whether another page may follow, and
// it alone decides exhaustion: a page whose entries were all filtered
// away still continues the walk when the raw listing has more pages.
type Provider interface {
	Name() string
	Page(ctx context.Context, page int) ([]Entry, bool, error)
}

// DiscoveryError reports that the listing source stayed unreachable
// after retries. It is non-fatal to papers already in the catalog.
type DiscoveryError struct {
	Provider string
	Cause    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery via %s: %v", e.Provider, e.Cause)
}

func (e *DiscoveryError) Unwrap() error { return e.Cause }

// Discoverer paginates a Provider until exhaustion, emitting entries in
// listing order.
type Discoverer struct {
	provider Provider
	cfg      types.DiscoveryConfig
	policy   retry.Policy
}

// New builds a Discoverer over the given provider.
func New(provider Provider, cfg types.DiscoveryConfig) *Discoverer {
	return &Discoverer{
		provider: provider,
		cfg:      cfg,
		policy:   retry.FromConfig(cfg.Retry, nil),
	}
}

// Discover walks listing pages and calls emit for each entry, in order.
// It stops at the provider's "no more pages" signal or at the configured
// page cap, whichever comes first. An emit error stops the walk and is
// returned as-is; a page that stays unreachable after retries is
// returned as a DiscoveryError.
func (d *Discoverer) Discover(ctx context.Context, emit func(Entry) error) error {
	for page := 0; ; page++ {
		if d.cfg.MaxPages > 0 && page >= d.cfg.MaxPages {
			return nil
		}
		if page > 0 && d.cfg.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.PageDelay):
			}
		}

		var entries []Entry
		var more bool
		err := d.policy.Do(ctx, func() error {
			var pageErr error
			entries, more, pageErr = d.provider.Page(ctx, page)
			return pageErr
		})
		if err != nil {
			return &DiscoveryError{Provider: d.provider.Name(), Cause: err}
		}

		for _, e := range entries {
			if err := emit(e); err != nil {
				return err
			}
		}

		if !more {
			return nil
		}
	}
}

// unsafeChars matches characters that cannot appear in on-disk artifact
// names or stable ids derived from titles.
var unsafeChars = regexp.MustCompile(`[\\/*?:"<>|\s]+`)

// Slug derives a stable identifier from free text, replacing filesystem-
// hostile characters and whitespace runs with single underscores.
func Slug(text string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(text), "_")
	return strings.Trim(s, "_")
}
