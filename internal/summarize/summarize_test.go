// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycheng/paperboy/internal/retry"
	"github.com/lycheng/paperboy/pkg/types"
)

func init() {
	retry.BaseDelay = 1 * time.Millisecond
}

// fakeEngine records prompts and answers with a short digest of each,
// optionally failing the first failN calls.
type fakeEngine struct {
	prompts []string
	failN   int
	calls   int
}

func (f *fakeEngine) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	if f.calls <= f.failN {
		return "", errors.New("model overloaded")
	}
	f.prompts = append(f.prompts, prompt)
	return fmt.Sprintf("digest(%d bytes of %.24q)", len(prompt), prompt), nil
}

func testSummaryConfig(budget int) types.SummaryConfig {
	return types.SummaryConfig{
		Retry:         types.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Model:         "qwen2.5:72b-32k",
		ContextBudget: budget,
	}
}

func TestSummarize_SmallInputTakesDirectPath(t *testing.T) {
	engine := &fakeEngine{}
	s, err := New(engine, testSummaryConfig(4000))
	require.NoError(t, err)

	// Roughly 500 tokens, well under a 4000-token ceiling.
	input := strings.Repeat("Attention heads attend to positions. ", 54)
	out, err := s.Summarize(context.Background(), input)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	require.Len(t, engine.prompts, 1)
	assert.Contains(t, engine.prompts[0], "Attention heads attend")
	assert.Contains(t, engine.prompts[0], "core topic of the paper")
	assert.NotContains(t, engine.prompts[0], "Part 1 of")
}

func TestSummarize_LargeInputChunksThenReduces(t *testing.T) {
	engine := &fakeEngine{}
	s, err := New(engine, testSummaryConfig(500))
	require.NoError(t, err)

	var doc strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&doc, "# Section %d\n\n%s\n\n", i, strings.Repeat(fmt.Sprintf("sentence s%d. ", i), 60))
	}

	out, err := s.Summarize(context.Background(), doc.String())
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	// At least two chunk prompts plus one reduction prompt.
	require.GreaterOrEqual(t, len(engine.prompts), 3)

	reduce := engine.prompts[len(engine.prompts)-1]
	nChunks := len(engine.prompts) - 1
	assert.Contains(t, reduce, fmt.Sprintf("Part 1 of %d", nChunks))
	assert.Contains(t, reduce, fmt.Sprintf("Part %d of %d", nChunks, nChunks))

	// Chunk prompts arrive in document order.
	assert.Contains(t, engine.prompts[0], "Section 1")
	lastChunk := engine.prompts[nChunks-1]
	assert.Contains(t, lastChunk, "Section 6")
}

func TestSummarize_ReductionIsOrderSensitive(t *testing.T) {
	p, err := loadPrompts(types.SummaryConfig{})
	require.NoError(t, err)

	parts := []promptPart{
		{Index: 1, Summary: "introduces the method"},
		{Index: 2, Summary: "evaluates the method"},
	}
	forward, err := p.renderReduce(parts)
	require.NoError(t, err)

	swapped, err := p.renderReduce([]promptPart{
		{Index: 1, Summary: parts[1].Summary},
		{Index: 2, Summary: parts[0].Summary},
	})
	require.NoError(t, err)

	// Reordering chunk summaries changes the reduction input, so the
	// reduction output differs too.
	assert.NotEqual(t, forward, swapped)
}

func TestSummarize_StripsImageLinks(t *testing.T) {
	engine := &fakeEngine{}
	s, err := New(engine, testSummaryConfig(4000))
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "Results shown in ![figure 3](img/fig3.png) confirm the claim.")
	require.NoError(t, err)

	require.Len(t, engine.prompts, 1)
	assert.NotContains(t, engine.prompts[0], "fig3.png")
	assert.Contains(t, engine.prompts[0], "Results shown in  confirm the claim.")
}

func TestSummarize_EmptyAfterStripping(t *testing.T) {
	engine := &fakeEngine{}
	s, err := New(engine, testSummaryConfig(4000))
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "![a](x.png) ![b](y.png)")
	var serr *SummarizationError
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, engine.calls)
}

func TestSummarize_RetriesTransientFailures(t *testing.T) {
	engine := &fakeEngine{failN: 2}
	s, err := New(engine, testSummaryConfig(4000))
	require.NoError(t, err)

	out, err := s.Summarize(context.Background(), "short paper text")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, 3, engine.calls)
}

func TestSummarize_ExhaustionReturnsSummarizationError(t *testing.T) {
	engine := &fakeEngine{failN: 100}
	s, err := New(engine, testSummaryConfig(4000))
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "short paper text")
	var serr *SummarizationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 3, engine.calls)
}

func TestSummarize_ChunkFailureDiscardsPartials(t *testing.T) {
	// Fails every call after the first success: the first chunk summary
	// is produced, the second exhausts its retries.
	engine := &failAfterEngine{succeed: 1}
	s, err := New(engine, testSummaryConfig(500))
	require.NoError(t, err)

	var doc strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&doc, "# Section %d\n\n%s\n\n", i, strings.Repeat("words and words. ", 80))
	}

	out, err := s.Summarize(context.Background(), doc.String())
	var serr *SummarizationError
	require.ErrorAs(t, err, &serr)
	assert.Empty(t, out)
}

// failAfterEngine succeeds for the first `succeed` calls, fails after.
type failAfterEngine struct {
	succeed int
	calls   int
}

func (f *failAfterEngine) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	if f.calls > f.succeed {
		return "", errors.New("model gone")
	}
	return "chunk summary", nil
}

func TestSummarize_PromptFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Custom instructions.\n\n{{.Content}}\n"), 0o644))

	engine := &fakeEngine{}
	cfg := testSummaryConfig(4000)
	cfg.PromptFile = path
	s, err := New(engine, cfg)
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "paper body")
	require.NoError(t, err)
	require.Len(t, engine.prompts, 1)
	assert.Contains(t, engine.prompts[0], "Custom instructions.")
	assert.Contains(t, engine.prompts[0], "paper body")
}

func TestSplitChunks(t *testing.T) {
	long := strings.Repeat("filler text here. ", 100) // ~450 tokens

	t.Run("short text is one chunk", func(t *testing.T) {
		chunks := splitChunks("# A\n\nbody", 100)
		require.Len(t, chunks, 1)
	})

	t.Run("splits at headings in order", func(t *testing.T) {
		doc := "# One\n\n" + long + "\n\n# Two\n\n" + long + "\n\n# Three\n\n" + long
		chunks := splitChunks(doc, 500)
		require.GreaterOrEqual(t, len(chunks), 2)
		assert.Contains(t, chunks[0], "# One")
		assert.Contains(t, chunks[len(chunks)-1], "# Three")

		// Reassembly preserves every section in document order.
		joined := strings.Join(chunks, "\n\n")
		one := strings.Index(joined, "# One")
		two := strings.Index(joined, "# Two")
		three := strings.Index(joined, "# Three")
		assert.True(t, one < two && two < three)
	})

	t.Run("oversized section falls back to paragraphs", func(t *testing.T) {
		doc := "# Huge\n\n" + long + "\n\n" + long + "\n\n" + long
		chunks := splitChunks(doc, 500)
		require.GreaterOrEqual(t, len(chunks), 2)
		// No chunk severs a paragraph.
		for _, c := range chunks {
			assert.False(t, strings.HasSuffix(c, "filler"))
		}
	})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens("abc"))
	assert.Equal(t, 25, estimateTokens(strings.Repeat("a", 100)))
}
