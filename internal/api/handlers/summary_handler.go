package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/localbook/backend/internal/scheduler"
	"github.com/localbook/backend/internal/summary"
	"github.com/localbook/backend/pkg/logger"
)

type SummaryHandler struct {
	generator *summary.Generator
	sched     *scheduler.Scheduler
}

func NewSummaryHandler(generator *summary.Generator, sched *scheduler.Scheduler) *SummaryHandler {
	return &SummaryHandler{
		generator: generator,
		sched:     sched,
	}
}

// RequestSummary validates the source set, admits the generation job,
// and returns 202 with the artifact name the job will produce. Progress
// events arrive on the status socket of each involved source.
func (h *SummaryHandler) RequestSummary(c *fiber.Ctx) error {
	var req struct {
		SourceIDs []string `json:"source_ids"`
		Format    string   `json:"format"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.SourceIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one source id is required",
		})
	}

	format, err := summary.ParseFormat(req.Format)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.generator.Validate(req.SourceIDs); err != nil {
		return respondError(c, err)
	}

	ids := req.SourceIDs
	err = h.sched.Admit(scheduler.Job{
		Key: summary.JobKey(ids, format),
		Run: func(ctx context.Context) {
			h.generator.Run(ctx, ids, format)
		},
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrDuplicateJob) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "An identical summary job is already in progress",
			})
		}
		logger.Error("Failed to admit summary job", zap.Error(err))
		return respondError(c, err)
	}

	logger.Info("Summary job admitted",
		zap.Strings("source_ids", ids),
		zap.String("format", string(format)),
	)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_key":  summary.JobKey(ids, format),
		"filename": summary.Filename(ids, format),
	})
}
