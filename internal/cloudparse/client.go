package cloudparse

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

	"github.com/praxis-ed/curio/internal/domain"
)

// Client talks to the hosted document-parsing service used as the first
// fallback when the local layout engine cannot handle a document. The
// service accepts a raw document upload and returns a flat list of parsed
// sections.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Parsing a full textbook is slow; the service streams no
			// progress, it just answers when done.
			Timeout: 10 * time.Minute,
		},
	}
}

// ParsedSection is one unit of the service's flat output, roughly a page
// or lesson worth of markdown.
type ParsedSection struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
	Page  int    `json:"page,omitempty"`
}

type parseResponse struct {
	Sections []ParsedSection `json:"sections"`
	Error    string          `json:"error,omitempty"`
}

// ParseDocument uploads the document and returns its parsed sections. An
// unconfigured credential fails this strategy without touching the network.
func (c *Client) ParseDocument(ctx context.Context, path string) ([]ParsedSection, error) {
	if c.apiKey == "" {
		return nil, domain.ErrNoParseCredential
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document %s: %w", path, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/parse", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create parse request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud parse request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloud parse returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed parseResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode parse response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("cloud parse failed: %s", parsed.Error)
	}
	if len(parsed.Sections) == 0 {
		return nil, fmt.Errorf("cloud parse returned no sections for %s", filepath.Base(path))
	}
	return parsed.Sections, nil
}
