// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/lycheng/paperboy/pkg/types"
)

const defaultMaxContentLength = 3000

// CuboxInbox pushes summaries to a Cubox save API endpoint. The API URL
// embeds the operator's token, so it is loaded from secrets rather than
// the config file.
type CuboxInbox struct {
	Client           *http.Client
	APIURL           string
	Folder           string
	MaxContentLength int
}

// NewCuboxInbox builds an inbox from config, applying defaults for the
// HTTP timeout and content limit.
func NewCuboxInbox(cfg types.PublishConfig) *CuboxInbox {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxLen := cfg.MaxContentLength
	if maxLen <= 0 {
		maxLen = defaultMaxContentLength
	}
	return &CuboxInbox{
		Client:           &http.Client{Timeout: timeout},
		APIURL:           cfg.APIURL,
		Folder:           cfg.Folder,
		MaxContentLength: maxLen,
	}
}

// cuboxPayload is the save-API request body for a memo entry.
type cuboxPayload struct {
	Type        string   `json:"type"`
	Content     string   `json:"content"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Folder      string   `json:"folder"`
}

// cuboxResponse is the save-API response envelope. The service reports
// application errors with HTTP 200 and a non-200 body code.
type cuboxResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// Push saves one memo. Success requires both HTTP 200 and body code 200.
// The returned receipt identifies the accepted entry for the catalog.
func (c *CuboxInbox) Push(ctx context.Context, title, body string) (string, error) {
	content := body
	if len(content) > c.MaxContentLength {
		cut := c.MaxContentLength
		// Back up to a rune boundary; the limit is in bytes and can land
		// inside a multi-byte character.
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}

	payload := cuboxPayload{
		Type:        "memo",
		Content:     content,
		Title:       title,
		Description: "",
		Tags:        []string{},
		Folder:      c.Folder,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling memo: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling inbox service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading inbox response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inbox service returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var cr cuboxResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("parsing inbox response: %w", err)
	}
	if cr.Code != 200 {
		return "", fmt.Errorf("inbox service rejected memo: code %d %s", cr.Code, cr.Message)
	}

	return fmt.Sprintf("cubox:%d:%s", cr.Code, title), nil
}
