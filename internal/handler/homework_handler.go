package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/homework-tracker-api/internal/dto"
	"github.com/noah-isme/homework-tracker-api/internal/service"
	"github.com/noah-isme/homework-tracker-api/internal/utils"
)

// HomeworkHandler wires homework HTTP routes.
type HomeworkHandler struct {
	service service.HomeworkService
	logger  zerolog.Logger
}

// NewHomeworkHandler constructs the handler.
func NewHomeworkHandler(service service.HomeworkService, logger zerolog.Logger) *HomeworkHandler {
	return &HomeworkHandler{
		service: service,
		logger:  logger.With().Str("component", "homework_handler").Logger(),
	}
}

// Register attaches homework endpoints. writeGuards run before every mutating route.
func (h *HomeworkHandler) Register(router fiber.Router, writeGuards ...fiber.Handler) {
	write := func(handler fiber.Handler) []fiber.Handler {
		chain := make([]fiber.Handler, 0, len(writeGuards)+1)
		chain = append(chain, writeGuards...)
		return append(chain, handler)
	}

	router.Get("", h.list)
	router.Get("/stats", h.stats)
	router.Get("/subjects", h.subjects)
	router.Get("/:id", h.get)
	router.Post("", write(h.create)...)
	router.Patch("/:id", write(h.update)...)
	router.Post("/:id/complete", write(h.complete)...)
	router.Delete("/:id/complete", write(h.reopen)...)
	router.Post("/:id/attachment", write(h.attach)...)
	router.Delete("/:id", write(h.delete)...)
}

func (h *HomeworkHandler) list(c *fiber.Ctx) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	completed, err := parseOptionalBool(c, "completed")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	query := dto.HomeworkListQuery{
		Subject:   strings.TrimSpace(c.Query("subject")),
		Priority:  strings.ToLower(strings.TrimSpace(c.Query("priority"))),
		Status:    strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Search:    strings.TrimSpace(c.Query("q")),
		Completed: completed,
	}

	items, err := h.service.List(c.UserContext(), ownerID, query)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, items, "homework retrieved", fiber.Map{"count": len(items)})
}

func (h *HomeworkHandler) get(c *fiber.Ctx) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	homework, err := h.service.Get(c.UserContext(), ownerID, c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "homework retrieved", homework)
}

func (h *HomeworkHandler) create(c *fiber.Ctx) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var payload dto.HomeworkCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	homework, err := h.service.Create(c.UserContext(), ownerID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "homework created", homework)
}

func (h *HomeworkHandler) update(c *fiber.Ctx) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var payload dto.HomeworkUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	homework, err := h.service.Update(c.UserContext(), ownerID, c.Params("id"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "homework updated", homework)
}

func (h *HomeworkHandler) complete(c *fiber.Ctx) error {
	return h.setCompleted(c, true)
}

func (h *HomeworkHandler) reopen(c *fiber.Ctx) error {
	return h.setCompleted(c, false)
}

func (h *HomeworkHandler) setCompleted(c *fiber.Ctx, completed bool) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	homework, err := h.service.SetCompleted(c.UserContext(), ownerID, c.Params("id"), completed)
	if err != nil {
		return h.handleError(c, err)
	}

	message := "homework reopened"
	if completed {
		message = "homework completed"
	}
	return utils.SendSuccess(c, message, homework)
}

func (h *HomeworkHandler) attach(c *fiber.Ctx) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		file = nil
	}

	homework, err := h.service.AttachFile(c.UserContext(), ownerID, c.Params("id"), file)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attachment uploaded", homework)
}

func (h *HomeworkHandler) delete(c *fiber.Ctx) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	id := c.Params("id")
	if err := h.service.Delete(c.UserContext(), ownerID, id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "homework deleted", fiber.Map{"id": id})
}

func (h *HomeworkHandler) stats(c *fiber.Ctx) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	stats, cacheHit, err := h.service.Stats(c.UserContext(), ownerID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, stats, "stats retrieved", fiber.Map{"cache_hit": cacheHit})
}

func (h *HomeworkHandler) subjects(c *fiber.Ctx) error {
	ownerID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	subjects, err := h.service.Subjects(c.UserContext(), ownerID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "subjects retrieved", subjects)
}

func (h *HomeworkHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrHomeworkNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "homework not found")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidDeadline),
		errors.Is(err, service.ErrEmptyTitle),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrAttachmentMissing):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAttachmentTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrAttachmentTypeNotAllowed):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrAttachmentsDisabled):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
