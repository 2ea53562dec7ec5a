// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Stage is one discrete step in a Paper's lifecycle. Stages only move
// forward on success; StageFailed is reachable from any stage.
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageFetched    Stage = "fetched"
	StageConverted  Stage = "converted"
	StageSummarized Stage = "summarized"
	StagePublished  Stage = "published"
	StageFailed     Stage = "failed"
)

// stageOrder assigns each forward stage its position in the lifecycle.
var stageOrder = map[Stage]int{
	StageDiscovered: 0,
	StageFetched:    1,
	StageConverted:  2,
	StageSummarized: 3,
	StagePublished:  4,
}

// Index returns the position of s in the forward lifecycle, or -1 for
// StageFailed and unknown values.
func (s Stage) Index() int {
	if i, ok := stageOrder[s]; ok {
		return i
	}
	return -1
}

// Next returns the stage that follows s in the forward lifecycle. The
// second return value is false for StagePublished, StageFailed, and
// unknown values.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageDiscovered:
		return StageFetched, true
	case StageFetched:
		return StageConverted, true
	case StageConverted:
		return StageSummarized, true
	case StageSummarized:
		return StagePublished, true
	}
	return "", false
}

// Terminal reports whether s is an end state of the lifecycle.
func (s Stage) Terminal() bool {
	return s == StagePublished || s == StageFailed
}

// Valid reports whether s is a known stage value.
func (s Stage) Valid() bool {
	return s == StageFailed || s.Index() >= 0
}

// Paper is one discovered paper and the record of its progress through
// the pipeline. ID, Title, PDFURL, and DiscoveredAt are immutable after
// discovery; each artifact field is set exactly when the stage that
// produces it commits.
type Paper struct {
	// ID is a slug derived from the listing source, unique in the catalog.
	ID string `json:"id" yaml:"id"`

	// Title is the paper title as listed by the source.
	Title string `json:"title" yaml:"title"`

	// PDFURL is the URL the Fetcher downloads from.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// DiscoveredAt is when the Discoverer first saw this paper.
	DiscoveredAt time.Time `json:"discovered_at" yaml:"discovered_at"`

	// Stage is the paper's current lifecycle position.
	Stage Stage `json:"stage" yaml:"stage"`

	// FailedAt records the stage a failed paper was attempting when it
	// exhausted its retry budget. Empty unless Stage is StageFailed.
	FailedAt Stage `json:"failed_at,omitempty" yaml:"failed_at,omitempty"`

	// PDFPath is the local path of the downloaded PDF (set at fetched).
	PDFPath string `json:"pdf_path,omitempty" yaml:"pdf_path,omitempty"`

	// DocPath is the local path of the converted Markdown (set at converted).
	DocPath string `json:"doc_path,omitempty" yaml:"doc_path,omitempty"`

	// SummaryText is the generated summary (set at summarized).
	SummaryText string `json:"summary_text,omitempty" yaml:"summary_text,omitempty"`

	// PushReceipt is the inbox service acknowledgment (set at published).
	PushReceipt string `json:"push_receipt,omitempty" yaml:"push_receipt,omitempty"`

	// Attempts counts how many times each stage has been tried for this paper.
	Attempts map[Stage]int `json:"attempts,omitempty" yaml:"attempts,omitempty"`

	// LastError is the most recent stage failure, empty after a success.
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`

	// UpdatedAt is the time of the last catalog write for this record.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// AttemptCount returns the number of attempts recorded for stage.
func (p *Paper) AttemptCount(stage Stage) int {
	if p.Attempts == nil {
		return 0
	}
	return p.Attempts[stage]
}

// RecordAttempt increments the attempt counter for stage and stores err
// as the paper's last error.
func (p *Paper) RecordAttempt(stage Stage, err error) {
	if p.Attempts == nil {
		p.Attempts = make(map[Stage]int)
	}
	p.Attempts[stage]++
	if err != nil {
		p.LastError = err.Error()
	}
}

// Reached reports whether the paper's stage is at or past target.
// Failed papers report the position they reached before failing.
func (p *Paper) Reached(target Stage) bool {
	current := p.Stage
	if current == StageFailed {
		// FailedAt is the stage that did not complete; everything
		// before it did.
		idx := p.FailedAt.Index()
		if idx <= 0 {
			return false
		}
		return target.Index() <= idx-1
	}
	return current.Index() >= target.Index()
}
