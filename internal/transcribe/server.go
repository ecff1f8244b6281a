package transcribe

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

// ServerBackend calls an OpenAI-compatible /v1/audio/transcriptions endpoint,
// for users running whisper-server instead of the local binary. It cannot
// persist timed formats itself; callers write artifacts from the Result.
type ServerBackend struct {
	url    string
	client *http.Client
}

// NewServerBackend creates a backend for the endpoint at url.
func NewServerBackend(url string, timeout time.Duration) *ServerBackend {
	return &ServerBackend{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *ServerBackend) Name() string { return "whisper-server" }

type serverResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

func (b *ServerBackend) Transcribe(ctx context.Context, req Request) (*Result, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if req.Model != "" {
		w.WriteField("model", req.Model)
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}
	w.WriteField("language", lang)
	w.WriteField("response_format", "verbose_json")
	w.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper server request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper server error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed serverResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Result{Text: parsed.Text, Language: parsed.Language, Duration: parsed.Duration}, nil
}
