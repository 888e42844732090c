package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localbook/backend/internal/query"
	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/internal/storage/sqlite"
	"github.com/localbook/backend/pkg/logger"
)

type ChatHandler struct {
	engine *query.Engine
	store  *sqlite.Client
}

func NewChatHandler(engine *query.Engine, store *sqlite.Client) *ChatHandler {
	return &ChatHandler{
		engine: engine,
		store:  store,
	}
}

// AskQuestion answers a question grounded in the selected sources (or
// the whole completed corpus when none are named).
func (h *ChatHandler) AskQuestion(c *fiber.Ctx) error {
	var req query.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A question is required",
		})
	}

	resp, err := h.engine.Answer(c.Context(), req)
	if err != nil {
		logger.Error("Failed to answer question", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	conv := &models.Conversation{
		ID:        uuid.New().String(),
		Title:     req.Title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateConversation(conv); err != nil {
		logger.Error("Failed to create conversation", zap.Error(err))
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// GetConversation returns the conversation with its full turn history.
func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	conv, err := h.store.GetConversation(id)
	if err != nil {
		return respondError(c, err)
	}

	turns, err := h.store.ListTurns(id)
	if err != nil {
		logger.Error("Failed to list turns", zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"conversation": conv,
		"turns":        turns,
	})
}
