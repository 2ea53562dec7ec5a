// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline advances papers through the fetch, convert,
// summarize, and publish stages. Each paper progresses independently;
// one paper's failure never blocks another's progress. All durable
// state lives in the catalog, so a killed run resumes exactly where the
// last stage commit left off.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lycheng/paperboy/internal/catalog"
	"github.com/lycheng/paperboy/internal/convert"
	"github.com/lycheng/paperboy/internal/discover"
	"github.com/lycheng/paperboy/pkg/types"
)

// Fetcher downloads a paper's PDF and returns its local path.
type Fetcher interface {
	Fetch(ctx context.Context, id, pdfURL string) (string, error)
}

// Converter turns a downloaded PDF into Markdown and returns its path.
type Converter interface {
	Convert(ctx context.Context, id, pdfPath string) (string, error)
}

// Summarizer produces a summary from converted text.
type Summarizer interface {
	Summarize(ctx context.Context, docText string) (string, error)
}

// Publisher delivers a summary and returns the service receipt.
type Publisher interface {
	Publish(ctx context.Context, title, summary string) (string, error)
}

// Discoverer yields listing entries for insertion into the catalog.
type Discoverer interface {
	Discover(ctx context.Context, emit func(discover.Entry) error) error
}

// forward lists the success stages in lifecycle order.
var forward = []types.Stage{
	types.StageDiscovered,
	types.StageFetched,
	types.StageConverted,
	types.StageSummarized,
	types.StagePublished,
}

// FailedPaper describes one paper that entered the failed state during
// a run, for the end-of-run report.
type FailedPaper struct {
	ID        string
	Stage     types.Stage
	LastError string
}

// Report summarizes one pipeline run.
type Report struct {
	RunID      string
	Discovered int
	Advanced   map[types.Stage]int
	Failed     []FailedPaper
	Skipped    int
}

// Write prints the run report in stage order.
func (r Report) Write(w io.Writer) {
	fmt.Fprintf(w, "run %s\n", r.RunID)
	if r.Discovered > 0 {
		fmt.Fprintf(w, "  discovered %d new papers\n", r.Discovered)
	}
	for _, stage := range forward[1:] {
		if n := r.Advanced[stage]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", stage, n)
		}
	}
	if r.Skipped > 0 {
		fmt.Fprintf(w, "  skipped %d papers claimed by another run\n", r.Skipped)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed  %s at %s: %s\n", f.ID, f.Stage, f.LastError)
	}
}

// Driver owns one run of the pipeline. It is the only mutator of stage,
// attempt, and error fields; artifact fields are written in the same
// catalog update as the stage transition that produced them.
type Driver struct {
	store      *catalog.Store
	fetcher    Fetcher
	converter  Converter
	summarizer Summarizer
	publisher  Publisher
	cfg        types.PipelineConfig
	runID      string
	out        io.Writer
}

// NewDriver wires the stage components to the catalog. Each Driver gets
// its own run id, which scopes its claims on papers.
func NewDriver(store *catalog.Store, fetcher Fetcher, converter Converter, summarizer Summarizer, publisher Publisher, cfg types.PipelineConfig, out io.Writer) *Driver {
	if out == nil {
		out = io.Discard
	}
	return &Driver{
		store:      store,
		fetcher:    fetcher,
		converter:  converter,
		summarizer: summarizer,
		publisher:  publisher,
		cfg:        cfg,
		runID:      uuid.NewString(),
		out:        out,
	}
}

// RunID returns this driver's run identifier.
func (d *Driver) RunID() string { return d.runID }

// Discover walks the listing source and inserts unseen papers as
// discovered. Re-discovered ids are no-ops. A listing failure is
// non-fatal to papers already in the catalog; the caller may still
// advance them.
func (d *Driver) Discover(ctx context.Context, disc Discoverer) (int, error) {
	inserted := 0
	err := disc.Discover(ctx, func(e discover.Entry) error {
		isNew, err := d.store.UpsertIfAbsent(ctx, e.ID, e.Title, e.PDFURL)
		if err != nil {
			return err
		}
		if isNew {
			inserted++
			fmt.Fprintf(d.out, "discovered %s\n", e.ID)
		}
		return nil
	})
	return inserted, err
}

// Run advances every non-terminal paper as far as it can go in this
// run. Distinct papers advance in parallel under per-stage worker
// limits; each individual paper's stages remain strictly sequential.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	papers, err := d.store.Pending(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing pending papers: %w", err)
	}

	rep := Report{RunID: d.runID, Advanced: make(map[types.Stage]int)}

	publishBudget := int64(d.cfg.Publish.MaxPerRun)
	unlimited := d.cfg.Publish.MaxPerRun <= 0

	sems := make(map[types.Stage]chan struct{})
	for _, stage := range forward[1:] {
		sems[stage] = make(chan struct{}, d.cfg.Workers.Limit(stage))
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range papers {
		wg.Add(1)
		go func(p *types.Paper) {
			defer wg.Done()
			d.advance(ctx, p, sems, &publishBudget, unlimited, &mu, &rep)
		}(p)
	}
	wg.Wait()

	return rep, ctx.Err()
}

// advance moves one paper forward stage by stage until it is terminal,
// out of publish budget, or a stage fails.
func (d *Driver) advance(ctx context.Context, p *types.Paper, sems map[types.Stage]chan struct{}, publishBudget *int64, unlimited bool, mu *sync.Mutex, rep *Report) {
	claimed, err := d.store.Claim(ctx, p.ID, d.runID)
	if err != nil {
		fmt.Fprintf(d.out, "failed  %s: %v\n", p.ID, err)
		return
	}
	if !claimed {
		mu.Lock()
		rep.Skipped++
		mu.Unlock()
		return
	}
	defer d.store.Release(context.WithoutCancel(ctx), p.ID, d.runID)

	// Re-read under the claim: another run may have advanced this paper
	// between the pending listing and the claim succeeding.
	fresh, err := d.store.Get(ctx, p.ID)
	if err != nil {
		fmt.Fprintf(d.out, "failed  %s: %v\n", p.ID, err)
		return
	}
	p = fresh

	for {
		next, ok := p.Stage.Next()
		if !ok {
			return
		}

		if next == types.StagePublished && !unlimited {
			if atomic.AddInt64(publishBudget, -1) < 0 {
				return
			}
		}

		sem := sems[next]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		err := d.runStage(ctx, p, next)
		<-sem

		if ctx.Err() != nil {
			// Interrupted mid-stage: nothing was committed, the paper
			// retries from its last persisted stage next run.
			return
		}
		if err != nil {
			if next == types.StagePublished && !unlimited {
				// Nothing was delivered, so the slot goes back for
				// another paper in this run.
				atomic.AddInt64(publishBudget, 1)
			}
			d.recordFailure(ctx, p, next, err, mu, rep)
			return
		}

		fmt.Fprintf(d.out, "%-10s %s\n", next, p.ID)
		mu.Lock()
		rep.Advanced[next]++
		mu.Unlock()
	}
}

// runStage invokes one stage component and commits its artifact
// together with the stage transition. The stage components write their
// file artifacts durably before returning, so the catalog never marks a
// stage complete whose artifact is missing.
func (d *Driver) runStage(ctx context.Context, p *types.Paper, next types.Stage) error {
	var apply func(*types.Paper)

	switch next {
	case types.StageFetched:
		path, err := d.fetcher.Fetch(ctx, p.ID, p.PDFURL)
		if err != nil {
			return err
		}
		apply = func(rec *types.Paper) { rec.PDFPath = path }

	case types.StageConverted:
		path, err := d.converter.Convert(ctx, p.ID, p.PDFPath)
		if err != nil {
			return err
		}
		apply = func(rec *types.Paper) { rec.DocPath = path }

	case types.StageSummarized:
		doc, err := os.ReadFile(p.DocPath)
		if err != nil {
			return fmt.Errorf("reading converted text for %s: %w", p.ID, err)
		}
		// The converted file carries provenance frontmatter; only the
		// document body is paper content.
		summary, err := d.summarizer.Summarize(ctx, convert.StripFrontmatter(string(doc)))
		if err != nil {
			return err
		}
		apply = func(rec *types.Paper) { rec.SummaryText = summary }

	case types.StagePublished:
		receipt, err := d.publisher.Publish(ctx, p.Title, p.SummaryText)
		if err != nil {
			return err
		}
		apply = func(rec *types.Paper) { rec.PushReceipt = receipt }

	default:
		return fmt.Errorf("no component for stage %s", next)
	}

	err := d.store.Update(ctx, p.ID, func(rec *types.Paper) error {
		// A record already at or past this stage keeps its stored state.
		if rec.Stage.Index() < next.Index() {
			apply(rec)
			rec.Stage = next
			rec.LastError = ""
		}
		*p = *rec
		return nil
	})
	if err != nil {
		return fmt.Errorf("committing %s for %s: %w", next, p.ID, err)
	}
	return nil
}

// recordFailure books one failed attempt and moves the paper to the
// failed state when the attempt ceiling is reached or the error is not
// worth retrying.
func (d *Driver) recordFailure(ctx context.Context, p *types.Paper, stage types.Stage, cause error, mu *sync.Mutex, rep *Report) {
	fatal := convert.IsFatal(cause)

	err := d.store.Update(ctx, p.ID, func(rec *types.Paper) error {
		rec.RecordAttempt(stage, cause)
		if fatal || rec.AttemptCount(stage) >= d.cfg.Ceiling(stage) {
			rec.Stage = types.StageFailed
			rec.FailedAt = stage
		}
		*p = *rec
		return nil
	})
	if err != nil {
		fmt.Fprintf(d.out, "failed  %s: recording error: %v\n", p.ID, err)
		return
	}

	if p.Stage == types.StageFailed {
		fmt.Fprintf(d.out, "failed  %s at %s: %v\n", p.ID, stage, cause)
		mu.Lock()
		rep.Failed = append(rep.Failed, FailedPaper{ID: p.ID, Stage: stage, LastError: cause.Error()})
		mu.Unlock()
	} else {
		fmt.Fprintf(d.out, "retrying %s at %s next run (attempt %d): %v\n", p.ID, stage, p.AttemptCount(stage), cause)
	}
}

// ForceRetry returns a failed paper to its last completed stage so the
// next run reattempts the stage that failed, with a fresh attempt
// budget for that stage.
func (d *Driver) ForceRetry(ctx context.Context, id string) error {
	return d.store.Update(ctx, id, func(rec *types.Paper) error {
		if rec.Stage != types.StageFailed {
			return fmt.Errorf("paper %s is %s, not failed", id, rec.Stage)
		}
		idx := rec.FailedAt.Index()
		if idx <= 0 {
			return errors.New("failed paper has no recorded failing stage")
		}
		if rec.Attempts != nil {
			delete(rec.Attempts, rec.FailedAt)
		}
		rec.Stage = forward[idx-1]
		rec.FailedAt = ""
		rec.LastError = ""
		return nil
	})
}
