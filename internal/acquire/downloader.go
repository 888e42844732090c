// Package acquire fetches remote source payloads. Failures surface as
// AcquisitionError so the pipeline can distinguish a bad download from a
// bad extraction.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/localbook/backend/pkg/errdefs"
	"github.com/localbook/backend/pkg/logger"
	"github.com/localbook/backend/pkg/utils"
)

type Downloader struct {
	client *http.Client
}

func NewDownloader(timeout time.Duration) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads rawURL into destDir and returns the local path. The
// filename is the source id followed by the URL path's basename, or a
// hash of the URL when the path carries none; the id prefix keeps
// same-named payloads from distinct sources apart in the shared dir.
func (d *Downloader) Fetch(ctx context.Context, sourceID, rawURL, destDir string) (string, error) {
	logger.Info("Downloading remote source", zap.String("url", rawURL))

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", &errdefs.AcquisitionError{URL: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", &errdefs.AcquisitionError{URL: rawURL, Err: fmt.Errorf("failed to create download dir: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &errdefs.AcquisitionError{URL: rawURL, Err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &errdefs.AcquisitionError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &errdefs.AcquisitionError{
			URL: rawURL,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	destPath := filepath.Join(destDir, sourceID+"_"+filenameFor(parsed))

	out, err := os.Create(destPath)
	if err != nil {
		return "", &errdefs.AcquisitionError{URL: rawURL, Err: fmt.Errorf("failed to create download file: %w", err)}
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(destPath)
		return "", &errdefs.AcquisitionError{URL: rawURL, Err: fmt.Errorf("failed to write download: %w", err)}
	}

	logger.Info("Remote source downloaded",
		zap.String("url", rawURL),
		zap.String("path", destPath),
		zap.Int64("bytes", written),
	)
	return destPath, nil
}

func filenameFor(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || len(name) > 100 {
		name = "download_" + utils.HashString(u.String())[:10]
	}
	return name
}
