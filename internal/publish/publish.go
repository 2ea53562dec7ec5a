// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package publish delivers finished summaries to a read-later inbox.
// The caller decides which papers are eligible; this package only sends
// one summary per call and reports the service's receipt.
package publish

import (
	"context"
	"fmt"

	"github.com/lycheng/paperboy/internal/retry"
	"github.com/lycheng/paperboy/pkg/types"
)

// Inbox abstracts the push service so tests can supply a fake.
type Inbox interface {
	// Push sends one (title, body) entry and returns an opaque receipt.
	Push(ctx context.Context, title, body string) (string, error)
}

// PublishError reports inbox rejection after retry exhaustion.
type PublishError struct {
	Title string
	Cause error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing %q: %v", e.Title, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// Publisher wraps an Inbox with the shared retry policy.
type Publisher struct {
	inbox  Inbox
	policy retry.Policy
}

// New builds a Publisher over the given inbox.
func New(inbox Inbox, cfg types.PublishConfig) *Publisher {
	return &Publisher{
		inbox:  inbox,
		policy: retry.FromConfig(cfg.Retry, nil),
	}
}

// Publish sends one summary and returns the service receipt. The caller
// persists the receipt before marking the paper delivered, so a crash
// between push and commit is re-tried, never silently lost.
func (p *Publisher) Publish(ctx context.Context, title, summary string) (string, error) {
	var receipt string
	err := p.policy.Do(ctx, func() error {
		r, err := p.inbox.Push(ctx, title, summary)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return "", &PublishError{Title: title, Cause: err}
	}
	return receipt, nil
}
