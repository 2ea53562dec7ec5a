// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summarize turns converted paper text into a single summary via
// an external completion service. Text over the service's context budget
// is split at natural breaks, each piece summarized independently, and
// the ordered piece summaries condensed in a final reduction pass.
package summarize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lycheng/paperboy/internal/retry"
	"github.com/lycheng/paperboy/pkg/types"
)

const defaultContextBudget = 4000

// Engine abstracts the completion service so tests can supply a
// deterministic fake.
type Engine interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// SummarizationError reports completion failure after retry exhaustion.
type SummarizationError struct {
	Cause error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization failed: %v", e.Cause)
}

func (e *SummarizationError) Unwrap() error { return e.Cause }

// imageLinkRe matches inline Markdown image links, which carry no
// summarizable content and waste context budget.
var imageLinkRe = regexp.MustCompile(`!\[.*?\]\(.*?\)`)

// Summarizer drives the chunk-and-reduce summarization for one paper at
// a time.
type Summarizer struct {
	engine  Engine
	cfg     types.SummaryConfig
	policy  retry.Policy
	prompts prompts
}

// New builds a Summarizer, loading prompt overrides if configured.
func New(engine Engine, cfg types.SummaryConfig) (*Summarizer, error) {
	p, err := loadPrompts(cfg)
	if err != nil {
		return nil, err
	}
	return &Summarizer{
		engine:  engine,
		cfg:     cfg,
		policy:  retry.FromConfig(cfg.Retry, nil),
		prompts: p,
	}, nil
}

// Summarize produces one summary for docText. Inputs that fit the
// context budget take a single direct completion; larger inputs go
// through per-chunk summaries and a reduction pass. No partial result
// is ever returned: any chunk failure fails the whole call.
func (s *Summarizer) Summarize(ctx context.Context, docText string) (string, error) {
	text := strings.TrimSpace(imageLinkRe.ReplaceAllString(docText, ""))
	if text == "" {
		return "", &SummarizationError{Cause: fmt.Errorf("document has no summarizable content")}
	}

	room := s.chunkBudget()
	if estimateTokens(text) <= room {
		prompt, err := s.prompts.renderSummary(text)
		if err != nil {
			return "", &SummarizationError{Cause: err}
		}
		return s.complete(ctx, prompt)
	}

	chunks := splitChunks(text, room)
	parts := make([]promptPart, 0, len(chunks))
	for i, chunk := range chunks {
		prompt, err := s.prompts.renderSummary(chunk)
		if err != nil {
			return "", &SummarizationError{Cause: err}
		}
		summary, err := s.complete(ctx, prompt)
		if err != nil {
			return "", err
		}
		parts = append(parts, promptPart{Index: i + 1, Summary: summary})
	}

	reducePrompt, err := s.prompts.renderReduce(parts)
	if err != nil {
		return "", &SummarizationError{Cause: err}
	}
	return s.complete(ctx, reducePrompt)
}

// complete runs one completion under the retry policy.
func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	var result string
	err := s.policy.Do(ctx, func() error {
		out, err := s.engine.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return "", &SummarizationError{Cause: err}
	}
	return result, nil
}

// chunkBudget is the token room left for paper text after the prompt
// template's own words are accounted for.
func (s *Summarizer) chunkBudget() int {
	budget := s.cfg.ContextBudget
	if budget <= 0 {
		budget = defaultContextBudget
	}
	overhead := 0
	if rendered, err := s.prompts.renderSummary(""); err == nil {
		overhead = estimateTokens(rendered)
	}
	room := budget - overhead
	if room < 256 {
		room = 256
	}
	return room
}

// estimateTokens approximates the token count as one token per four
// characters, the usual rule of thumb for English prose.
func estimateTokens(s string) int {
	return len(s) / 4
}

// splitChunks splits text into ordered chunks of at most maxTokens,
// preferring Markdown heading boundaries, then blank-line paragraph
// boundaries, over mid-sentence cuts. Chunk order follows document
// order.
func splitChunks(text string, maxTokens int) []string {
	sections := splitAtHeadings(text)

	var blocks []string
	for _, sec := range sections {
		if estimateTokens(sec) <= maxTokens {
			blocks = append(blocks, sec)
			continue
		}
		blocks = append(blocks, splitAtParagraphs(sec, maxTokens)...)
	}

	// Pack consecutive blocks into chunks up to the budget.
	var chunks []string
	var cur strings.Builder
	for _, block := range blocks {
		joined := cur.Len() + len("\n\n") + len(block)
		if cur.Len() > 0 && joined/4 > maxTokens {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(block)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(cur.String()))
	}
	return chunks
}

// splitAtHeadings breaks text at Markdown heading lines, keeping each
// heading with the body that follows it.
func splitAtHeadings(text string) []string {
	lines := strings.Split(text, "\n")
	var sections []string
	var cur []string
	for _, line := range lines {
		if strings.HasPrefix(line, "#") && len(cur) > 0 {
			sections = append(sections, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		sections = append(sections, strings.Join(cur, "\n"))
	}
	return sections
}

// splitAtParagraphs breaks an oversized section at blank lines. A single
// paragraph over budget is emitted whole; severing sentences hurts
// summary quality more than an oversized chunk does.
func splitAtParagraphs(section string, maxTokens int) []string {
	paras := strings.Split(section, "\n\n")
	var out []string
	var cur strings.Builder
	for _, para := range paras {
		joined := cur.Len() + len("\n\n") + len(para)
		if cur.Len() > 0 && joined/4 > maxTokens {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}
