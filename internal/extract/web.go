package extract

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// WebPageExtractor strips chrome elements from a downloaded HTML page and
// collapses the remaining body text.
type WebPageExtractor struct{}

func (e *WebPageExtractor) Extract(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open html file: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	text := doc.Find("body").Text()
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text), nil
}
