package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// TranscriberExtractor sends audio or video payloads to an external
// speech-to-text service (whisper-compatible: multipart upload, JSON
// {"text": ...} response). Transcription itself is a black box here.
type TranscriberExtractor struct {
	baseURL string
	client  *http.Client
}

func (e *TranscriberExtractor) Extract(ctx context.Context, path string) (string, error) {
	return postFile(ctx, e.client, e.baseURL+"/transcribe", path)
}

// OCRExtractor sends image payloads to an external OCR service with the
// same multipart contract as the transcriber.
type OCRExtractor struct {
	baseURL string
	client  *http.Client
}

func (e *OCRExtractor) Extract(ctx context.Context, path string) (string, error) {
	return postFile(ctx, e.client, e.baseURL+"/ocr", path)
}

func postFile(ctx context.Context, client *http.Client, url, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("collaborator call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("collaborator returned status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode collaborator response: %w", err)
	}
	return out.Text, nil
}
