// Package extract converts raw source material into normalized plain
// text. Each media kind has its own Extractor; format-heavy kinds (audio,
// video, image) delegate to external collaborator services and are only
// specified at their HTTP boundary here.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/pkg/errdefs"
)

// Config carries the endpoints of the external extraction collaborators.
type Config struct {
	TranscriberURL string
	OCRURL         string
	Timeout        time.Duration
}

// Extractor converts the file at path into normalized plain text. An
// empty result is not an error: it means the source had nothing to index.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Registry maps source kinds to their extractors.
type Registry struct {
	extractors map[models.SourceKind]Extractor
}

func NewRegistry(cfg Config) *Registry {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	transcriber := &TranscriberExtractor{baseURL: cfg.TranscriberURL, client: httpClient}

	return &Registry{
		extractors: map[models.SourceKind]Extractor{
			models.KindText:  &PlainTextExtractor{},
			models.KindPDF:   &PDFExtractor{},
			models.KindDocx:  &DocxExtractor{},
			models.KindEPUB:  &EPUBExtractor{},
			models.KindWeb:   &WebPageExtractor{},
			models.KindAudio: transcriber,
			models.KindVideo: transcriber,
			models.KindImage: &OCRExtractor{baseURL: cfg.OCRURL, client: httpClient},
		},
	}
}

// Extract dispatches to the extractor for kind. Unrecognized kinds are an
// ExtractionError, never a silent no-op.
func (r *Registry) Extract(ctx context.Context, kind models.SourceKind, path string) (string, error) {
	ex, ok := r.extractors[kind]
	if !ok {
		return "", &errdefs.ExtractionError{
			Kind: string(kind),
			Err:  fmt.Errorf("no extractor registered for kind %q", kind),
		}
	}

	text, err := ex.Extract(ctx, path)
	if err != nil {
		return "", &errdefs.ExtractionError{Kind: string(kind), Err: err}
	}
	return normalize(text), nil
}

// DetectKind classifies a local file by extension, falling back to
// content sniffing for extensionless payloads (typically downloads).
func DetectKind(path string) models.SourceKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return models.KindPDF
	case ".docx":
		return models.KindDocx
	case ".epub":
		return models.KindEPUB
	case ".txt", ".md":
		return models.KindText
	case ".mp3", ".wav", ".m4a", ".flac", ".ogg":
		return models.KindAudio
	case ".mp4", ".mov", ".mkv", ".webm":
		return models.KindVideo
	case ".png", ".jpg", ".jpeg":
		return models.KindImage
	case ".html", ".htm":
		return models.KindWeb
	}
	return sniffKind(path)
}

func sniffKind(path string) models.SourceKind {
	f, err := os.Open(path)
	if err != nil {
		return models.KindUnknown
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)

	switch contentType := http.DetectContentType(buf[:n]); {
	case contentType == "application/pdf":
		return models.KindPDF
	case strings.HasPrefix(contentType, "text/html"):
		return models.KindWeb
	case strings.HasPrefix(contentType, "text/"):
		return models.KindText
	case strings.HasPrefix(contentType, "audio/"):
		return models.KindAudio
	case strings.HasPrefix(contentType, "video/"):
		return models.KindVideo
	case strings.HasPrefix(contentType, "image/"):
		return models.KindImage
	}
	return models.KindUnknown
}

// normalize collapses Windows line endings and trims surrounding space.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
