package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/pkg/errdefs"
)

func TestDetectKindByExtension(t *testing.T) {
	cases := map[string]models.SourceKind{
		"report.pdf":     models.KindPDF,
		"Report.PDF":     models.KindPDF,
		"notes.docx":     models.KindDocx,
		"book.epub":      models.KindEPUB,
		"readme.md":      models.KindText,
		"plain.txt":      models.KindText,
		"talk.mp3":       models.KindAudio,
		"lecture.mp4":    models.KindVideo,
		"scan.png":       models.KindImage,
		"page.html":      models.KindWeb,
		"/a/b/index.htm": models.KindWeb,
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectKind(path), "path %q", path)
	}
}

func TestDetectKindSniffsExtensionless(t *testing.T) {
	dir := t.TempDir()

	pdfPath := filepath.Join(dir, "download_abc123")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.7 rest of file"), 0o644))
	assert.Equal(t, models.KindPDF, DetectKind(pdfPath))

	htmlPath := filepath.Join(dir, "download_def456")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<!DOCTYPE html><html><body>hi</body></html>"), 0o644))
	assert.Equal(t, models.KindWeb, DetectKind(htmlPath))

	textPath := filepath.Join(dir, "download_ghi789")
	require.NoError(t, os.WriteFile(textPath, []byte("just some prose"), 0o644))
	assert.Equal(t, models.KindText, DetectKind(textPath))
}

func TestDetectKindMissingFile(t *testing.T) {
	assert.Equal(t, models.KindUnknown, DetectKind("/no/such/payload"))
}

func TestRegistryUnknownKind(t *testing.T) {
	r := NewRegistry(Config{})

	_, err := r.Extract(context.Background(), models.KindUnknown, "whatever")
	var extraction *errdefs.ExtractionError
	require.ErrorAs(t, err, &extraction)
}

func TestRegistryNormalizesOutput(t *testing.T) {
	r := NewRegistry(Config{})

	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("  line one\r\nline two\r\n  "), 0o644))

	text, err := r.Extract(context.Background(), models.KindText, path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestParseDocxXML(t *testing.T) {
	content := []byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	text, err := parseDocxXML(content)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", text)
}

func TestParseDocxXMLInvalid(t *testing.T) {
	_, err := parseDocxXML([]byte("not xml at all <"))
	assert.Error(t, err)
}
