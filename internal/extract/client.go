// Package extract calls the question-extraction backend: upload an exam PDF,
// get a question list back. The backend is an opaque HTTP collaborator.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/exam"
)

type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(cfg config.ExtractConfig) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type extractResponse struct {
	Questions []exam.Question `json:"questions"`
	Error     string          `json:"error,omitempty"`
}

// Questions uploads the PDF and returns the extracted question list.
func (c *Client) Questions(ctx context.Context, filename string, pdf io.Reader) ([]exam.Question, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("extract backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("extract backend: %s", out.Error)
	}
	if len(out.Questions) == 0 {
		return nil, fmt.Errorf("no questions found in document")
	}
	return out.Questions, nil
}
