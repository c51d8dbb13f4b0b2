package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"inbox-backend/internal/inbox"
	"inbox-backend/internal/lookup"
	"inbox-backend/internal/store"
)

// Handler serves the inbox automation API.
type Handler struct {
	store   *store.Store
	rules   *inbox.RuleStore
	service *inbox.Service
}

func NewHandler(s *store.Store, rules *inbox.RuleStore, service *inbox.Service) *Handler {
	return &Handler{store: s, rules: rules, service: service}
}

// RegisterRoutes mounts the inbox API under /api.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Get("/inboxes/:inboxId/rules", h.ListRules)
	api.Post("/inboxes/:inboxId/rules", h.CreateRule)
	api.Post("/inboxes/:inboxId/rules/reorder", h.ReorderRules)
	api.Get("/inboxes/:inboxId/metrics", h.Metrics)
	api.Get("/rules/:id", h.GetRule)
	api.Put("/rules/:id", h.UpdateRule)
	api.Delete("/rules/:id", h.DeleteRule)

	api.Post("/conversations", h.CreateConversation)
	api.Get("/conversations/:id", h.GetConversation)
	api.Get("/conversations/:id/messages", h.ListMessages)
	api.Post("/conversations/:id/messages", h.AddMessage)

	api.Post("/lookups/constraints", h.LookupConstraints)
}

// --- rules ---

func (h *Handler) ListRules(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.Context(), c.Params("inboxId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rules})
}

func (h *Handler) CreateRule(c *fiber.Ctx) error {
	var rule inbox.Rule
	if err := c.BodyParser(&rule); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body: "+err.Error())
	}
	rule.InboxID = c.Params("inboxId")
	if user := currentUser(c); user != "" {
		rule.CreatedBy = user
	}

	if err := h.rules.Create(c.Context(), &rule); err != nil {
		return ruleSaveError(err)
	}
	return c.Status(201).JSON(fiber.Map{"data": rule})
}

func (h *Handler) GetRule(c *fiber.Ctx) error {
	rule, err := h.rules.Get(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("rule", c.Params("id"))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rule})
}

func (h *Handler) UpdateRule(c *fiber.Ctx) error {
	id := c.Params("id")
	rule, err := h.rules.Get(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("rule", id)
	}
	if err != nil {
		return err
	}

	// Partial update: the body overlays the stored rule
	if err := c.BodyParser(rule); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body: "+err.Error())
	}
	rule.ID = id

	if err := h.rules.Update(c.Context(), rule); err != nil {
		return ruleSaveError(err)
	}
	return c.JSON(fiber.Map{"data": rule})
}

func (h *Handler) DeleteRule(c *fiber.Ctx) error {
	err := h.rules.Delete(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("rule", c.Params("id"))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Rule deleted"})
}

func (h *Handler) ReorderRules(c *fiber.Ctx) error {
	var body struct {
		RuleIDs []string `json:"rule_ids"`
	}
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body: "+err.Error())
	}
	if len(body.RuleIDs) == 0 {
		return NewAppError("INVALID_PAYLOAD", 400, "rule_ids is required")
	}
	if err := h.rules.Reorder(c.Context(), c.Params("inboxId"), body.RuleIDs); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Rules reordered"})
}

// --- conversations ---

func (h *Handler) CreateConversation(c *fiber.Ctx) error {
	var input inbox.ConversationInput
	if err := c.BodyParser(&input); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body: "+err.Error())
	}

	conversation, err := h.service.CreateConversation(c.Context(), input)
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("inbox", input.InboxID)
	}
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": conversation})
}

func (h *Handler) GetConversation(c *fiber.Ctx) error {
	conversation, err := h.service.GetConversation(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("conversation", c.Params("id"))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": conversation})
}

func (h *Handler) ListMessages(c *fiber.Ctx) error {
	messages, err := h.service.ListMessages(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": messages})
}

func (h *Handler) AddMessage(c *fiber.Ctx) error {
	var input inbox.MessageInput
	if err := c.BodyParser(&input); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body: "+err.Error())
	}

	message, err := h.service.AddMessage(c.Context(), c.Params("id"), input)
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("conversation", c.Params("id"))
	}
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": message})
}

// --- metrics ---

func (h *Handler) Metrics(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil || days < 1 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	metrics, err := inbox.InboxMetrics(c.Context(), h.store, c.Params("inboxId"), since)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": metrics})
}

// --- lookups ---

// LookupConstraints resolves a lookup configuration plus a form context
// into the constraints and where clauses a lookup query would apply.
func (h *Handler) LookupConstraints(c *fiber.Ctx) error {
	var body struct {
		Config  lookup.Configuration `json:"config"`
		Context map[string]any       `json:"context"`
	}
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid lookup configuration: "+err.Error())
	}

	constraints := body.Config.BuildQueryConstraints(body.Context)

	var clauses []lookup.WhereClause
	if body.Config.HasDependency() && body.Config.DependencyFilter != nil {
		if value, ok := body.Context[body.Config.DependsOn]; ok {
			clauses = append(clauses, body.Config.DependencyFilter.BuildWhereClause(value))
		}
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"constraints":  constraints,
		"where":        clauses,
		"show_recent":  body.Config.ShouldShowRecent(),
		"recent_limit": body.Config.RecentLimit(),
	}})
}

// --- helpers ---

func ruleSaveError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &AppError{Code: "NOT_FOUND", Status: 404, Message: "Rule not found"}
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return NewAppError("CONFLICT", 409, "Rule conflicts with an existing rule")
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	// Construction failures (bad operator, bad expression) surface as 422
	return ValidationError([]ErrorDetail{{Message: err.Error()}})
}

func currentUser(c *fiber.Ctx) string {
	type userContext interface{ UserID() string }
	if u, ok := c.Locals("user").(userContext); ok {
		return u.UserID()
	}
	return ""
}
