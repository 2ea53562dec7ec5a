// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollBudget   = 5 * time.Minute
)

// RemoteEngine talks to an HTTP conversion service with a
// submit → poll → retrieve contract: POST the PDF, poll the job until it
// reports done or failed, then fetch the Markdown result.
type RemoteEngine struct {
	Client       *http.Client
	BaseURL      string
	UserAgent    string
	AuthToken    string
	PollInterval time.Duration
	PollBudget   time.Duration
}

// Job status values reported by the conversion service.
const (
	jobPending = "pending"
	jobRunning = "running"
	jobDone    = "done"
	jobFailed  = "failed"
)

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Convert submits pdfPath and waits for the converted Markdown.
func (e *RemoteEngine) Convert(ctx context.Context, pdfPath string) (string, error) {
	jobID, err := e.submit(ctx, pdfPath)
	if err != nil {
		return "", err
	}
	if err := e.await(ctx, jobID); err != nil {
		return "", err
	}
	return e.result(ctx, jobID)
}

// submit uploads the PDF and returns the service's job id. A 4xx
// response means the service rejected the file itself.
func (e *RemoteEngine) submit(ctx context.Context, pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(pdfPath))
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading PDF %s: %w", pdfPath, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalizing upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/v1/jobs", &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	e.setHeaders(req)

	resp, err := e.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting conversion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &ConversionError{Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("conversion service returned HTTP %d", resp.StatusCode)
	}

	var jr jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return "", fmt.Errorf("parsing submit response: %w", err)
	}
	if jr.JobID == "" {
		return "", fmt.Errorf("conversion service returned no job id")
	}
	return jr.JobID, nil
}

// await polls the job until done, failed, or the poll budget runs out.
func (e *RemoteEngine) await(ctx context.Context, jobID string) error {
	interval := e.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	budget := e.PollBudget
	if budget <= 0 {
		budget = defaultPollBudget
	}

	start := time.Now()
	for {
		status, err := e.poll(ctx, jobID)
		if err != nil {
			return err
		}
		switch status.Status {
		case jobDone:
			return nil
		case jobFailed:
			return &ConversionError{Reason: status.Error}
		case jobPending, jobRunning:
		default:
			return fmt.Errorf("conversion job %s in unknown state %q", jobID, status.Status)
		}

		if elapsed := time.Since(start); elapsed >= budget {
			return &ConversionTimeout{Elapsed: elapsed}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (e *RemoteEngine) poll(ctx context.Context, jobID string) (jobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return jobResponse{}, fmt.Errorf("creating request: %w", err)
	}
	e.setHeaders(req)

	resp, err := e.client().Do(req)
	if err != nil {
		return jobResponse{}, fmt.Errorf("polling conversion job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jobResponse{}, fmt.Errorf("conversion service returned HTTP %d", resp.StatusCode)
	}

	var jr jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return jobResponse{}, fmt.Errorf("parsing job status: %w", err)
	}
	return jr, nil
}

func (e *RemoteEngine) result(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/v1/jobs/"+jobID+"/result", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	e.setHeaders(req)

	resp, err := e.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("retrieving conversion result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("conversion service returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading conversion result: %w", err)
	}
	return string(data), nil
}

// setHeaders applies the identification headers shared by every
// conversion service request.
func (e *RemoteEngine) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", e.UserAgent)
	if e.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.AuthToken)
	}
}

func (e *RemoteEngine) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}
