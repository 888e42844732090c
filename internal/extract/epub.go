package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EPUBExtractor walks the xhtml entries of the epub zip container and
// strips their markup. Entries that fail to parse are skipped; only a
// completely unreadable container is an error.
type EPUBExtractor struct{}

func (e *EPUBExtractor) Extract(_ context.Context, path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open epub container: %w", err)
	}
	defer reader.Close()

	var sb strings.Builder
	for _, file := range reader.File {
		if !isContentEntry(file.Name) {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(rc)
		rc.Close()
		if err != nil {
			continue
		}

		doc.Find("script, style").Remove()
		text := strings.TrimSpace(doc.Text())
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}
	return sb.String(), nil
}

func isContentEntry(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".xhtml") ||
		strings.HasSuffix(lower, ".html") ||
		strings.HasSuffix(lower, ".htm")
}
