package handlers

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localbook/backend/internal/extract"
	"github.com/localbook/backend/internal/ingest"
	"github.com/localbook/backend/internal/scheduler"
	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/internal/storage/sqlite"
	"github.com/localbook/backend/pkg/logger"
)

type SourceHandler struct {
	store      *sqlite.Client
	pipeline   *ingest.Pipeline
	sched      *scheduler.Scheduler
	uploadsDir string
}

func NewSourceHandler(store *sqlite.Client, pipeline *ingest.Pipeline, sched *scheduler.Scheduler, uploadsDir string) *SourceHandler {
	return &SourceHandler{
		store:      store,
		pipeline:   pipeline,
		sched:      sched,
		uploadsDir: uploadsDir,
	}
}

// UploadSource registers a local payload sent as a multipart file and
// admits its ingestion job. The response is the pending record; status
// progress arrives over the status socket or by polling.
func (h *SourceHandler) UploadSource(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A file is required",
		})
	}

	id := uuid.New().String()
	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		logger.Error("Failed to create uploads dir", zap.Error(err))
		return respondError(c, err)
	}
	savedPath := filepath.Join(h.uploadsDir, id+"_"+filepath.Base(fileHeader.Filename))
	if err := c.SaveFile(fileHeader, savedPath); err != nil {
		logger.Error("Failed to save upload", zap.Error(err))
		return respondError(c, err)
	}

	src := &models.Source{
		ID:        id,
		Name:      fileHeader.Filename,
		Origin:    savedPath,
		Remote:    false,
		Kind:      extract.DetectKind(savedPath),
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	return h.register(c, src)
}

// IngestURL registers a remote payload by URL. Acquisition happens in
// the background job; this endpoint only records the intent.
func (h *SourceHandler) IngestURL(c *fiber.Ctx) error {
	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A valid http or https URL is required",
		})
	}

	name := req.Name
	if name == "" {
		name = req.URL
	}

	// Initial guess from the URL path; the pipeline re-detects once the
	// payload is on disk.
	kind := extract.DetectKind(parsed.Path)
	if kind == models.KindUnknown {
		kind = models.KindWeb
	}

	src := &models.Source{
		ID:        uuid.New().String(),
		Name:      name,
		Origin:    req.URL,
		Remote:    true,
		Kind:      kind,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	return h.register(c, src)
}

func (h *SourceHandler) register(c *fiber.Ctx, src *models.Source) error {
	if err := h.store.CreateSource(src); err != nil {
		logger.Error("Failed to create source record", zap.Error(err))
		return respondError(c, err)
	}

	err := h.sched.Admit(scheduler.Job{
		Key: src.ID,
		Run: func(ctx context.Context) {
			h.pipeline.Run(ctx, src.ID)
		},
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrDuplicateJob) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Ingestion already in progress for this source",
			})
		}
		logger.Error("Failed to admit ingestion job", zap.Error(err))
		return respondError(c, err)
	}

	logger.Info("Source registered",
		zap.String("source_id", src.ID),
		zap.String("kind", string(src.Kind)),
		zap.Bool("remote", src.Remote),
	)
	return c.Status(fiber.StatusAccepted).JSON(src)
}

func (h *SourceHandler) ListSources(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 0)

	sources, err := h.store.ListSources(offset, limit)
	if err != nil {
		logger.Error("Failed to list sources", zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"sources": sources,
		"count":   len(sources),
	})
}

func (h *SourceHandler) GetSource(c *fiber.Ctx) error {
	src, err := h.store.GetSource(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(src)
}
