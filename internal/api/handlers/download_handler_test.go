package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDownloadApp(t *testing.T) (*fiber.App, string) {
	t.Helper()
	exports := t.TempDir()

	h, err := NewDownloadHandler(exports)
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/exports/:filename", h.DownloadExport)
	return app, exports
}

func TestDownloadExistingExport(t *testing.T) {
	app, exports := newDownloadApp(t)
	require.NoError(t, os.WriteFile(filepath.Join(exports, "summary_abc_txt.txt"), []byte("the summary"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/exports/summary_abc_txt.txt", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "the summary", string(body))
}

func TestDownloadMissingExport(t *testing.T) {
	app, _ := newDownloadApp(t)

	req := httptest.NewRequest(http.MethodGet, "/exports/nope.txt", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadRejectsTraversal(t *testing.T) {
	app, exports := newDownloadApp(t)

	// A real file one level above the exports dir that must stay
	// unreachable.
	secret := filepath.Join(filepath.Dir(exports), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o644))

	for _, name := range []string{
		"..%2Fsecret.txt",
		"..%2F..%2Fetc%2Fpasswd",
		"%2e%2e%2fsecret.txt",
	} {
		req := httptest.NewRequest(http.MethodGet, "/exports/"+name, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "filename %q must be rejected", name)
	}
}
