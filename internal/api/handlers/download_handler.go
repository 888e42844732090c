package handlers

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/localbook/backend/pkg/logger"
)

// DownloadHandler serves generated export artifacts. Only files inside
// the exports directory are reachable; traversal attempts get 403.
type DownloadHandler struct {
	exportsDir string
}

func NewDownloadHandler(exportsDir string) (*DownloadHandler, error) {
	abs, err := filepath.Abs(exportsDir)
	if err != nil {
		return nil, err
	}
	return &DownloadHandler{exportsDir: abs}, nil
}

func (h *DownloadHandler) DownloadExport(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("filename"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid filename",
		})
	}

	resolved, err := filepath.Abs(filepath.Join(h.exportsDir, name))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid filename",
		})
	}
	if resolved != h.exportsDir && !strings.HasPrefix(resolved, h.exportsDir+string(filepath.Separator)) {
		logger.Warn("Export download outside exports dir rejected", zap.String("filename", name))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied",
		})
	}

	if info, err := os.Stat(resolved); err != nil || info.IsDir() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Export not found",
		})
	}

	return c.Download(resolved)
}
