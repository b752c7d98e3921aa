package request

import (
	"time"

	"go-approvals/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type Controller struct {
	Service Service
}

func NewController(service Service) *Controller {
	return &Controller{Service: service}
}

func actorFrom(ctx *fiber.Ctx) Actor {
	claims := middleware.Claims(ctx)
	if claims == nil {
		return Actor{}
	}
	return Actor{ID: claims.UserID, Name: claims.Name}
}

// CreateRequest godoc
// @Summary Create an approval request
// @Description Route a subject through a panel of approvers
// @Tags requests
// @Accept json
// @Produce json
// @Param request body CreateInput true "Request definition"
// @Success 201 {object} ApprovalRequest
// @Failure 400 {object} map[string]string "Validation failure"
// @Router /api/requests [post]
func (c *Controller) CreateRequest(ctx *fiber.Ctx) error {
	var input CreateInput
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input.Actor = actorFrom(ctx)
	input.IPAddress = ctx.IP()

	req, err := c.Service.Create(ctx.UserContext(), input)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(req)
}

// SubmitDecision godoc
// @Summary Submit an approver decision
// @Description Record the caller's signed decision and recompute the request status
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param decision body object true "Decision payload"
// @Success 200 {object} ApprovalRequest
// @Failure 403 {object} map[string]string "Not an approver"
// @Failure 409 {object} map[string]string "Terminal request or already decided"
// @Router /api/requests/{id}/decision [post]
func (c *Controller) SubmitDecision(ctx *fiber.Ctx) error {
	var body struct {
		Decision Decision `json:"decision"`
		Comment  string   `json:"comment"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input := DecisionInput{
		Actor:     actorFrom(ctx),
		Decision:  body.Decision,
		Comment:   body.Comment,
		IPAddress: ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
	}

	req, err := c.Service.SubmitDecision(ctx.UserContext(), ctx.Params("id"), input)
	if err != nil {
		return err
	}
	return ctx.JSON(req)
}

// AddComment godoc
// @Summary Comment on a request
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param comment body object true "Comment payload"
// @Success 201 {object} Comment
// @Router /api/requests/{id}/comments [post]
func (c *Controller) AddComment(ctx *fiber.Ctx) error {
	var body struct {
		Text     string `json:"text"`
		Internal bool   `json:"internal"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input := CommentInput{
		Actor:     actorFrom(ctx),
		Text:      body.Text,
		Internal:  body.Internal,
		IPAddress: ctx.IP(),
	}

	comment, err := c.Service.AddComment(ctx.UserContext(), ctx.Params("id"), input)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(comment)
}

// UpdateDueDate godoc
// @Summary Change or clear the due date
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param due body object true "Due date payload (null clears)"
// @Success 204 {object} nil
// @Failure 403 {object} map[string]string "Not the creator or an admin"
// @Router /api/requests/{id}/due-date [put]
func (c *Controller) UpdateDueDate(ctx *fiber.Ctx) error {
	var body struct {
		DueDate *time.Time `json:"due_date"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	claims := middleware.Claims(ctx)
	isAdmin := claims != nil && claims.IsAdmin()

	if err := c.Service.UpdateDueDate(ctx.UserContext(), ctx.Params("id"), body.DueDate, actorFrom(ctx), isAdmin); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// GetRequest godoc
// @Summary Fetch one request with its approver panel
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} Detail
// @Failure 404 {object} map[string]string "Unknown request"
// @Router /api/requests/{id} [get]
func (c *Controller) GetRequest(ctx *fiber.Ctx) error {
	detail, err := c.Service.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(detail)
}

// GetHistory godoc
// @Summary Ordered event history of a request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {array} Event
// @Router /api/requests/{id}/history [get]
func (c *Controller) GetHistory(ctx *fiber.Ctx) error {
	events, err := c.Service.History(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(events)
}

// GetComments godoc
// @Summary Comments on a request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {array} Comment
// @Router /api/requests/{id}/comments [get]
func (c *Controller) GetComments(ctx *fiber.Ctx) error {
	claims := middleware.Claims(ctx)
	includeInternal := claims != nil && claims.IsAdmin()
	if !includeInternal && claims != nil {
		// Creator and approvers see internal discussion too; external
		// parties only the public thread.
		detail, err := c.Service.Get(ctx.UserContext(), ctx.Params("id"))
		if err != nil {
			return err
		}
		if detail.Request.CreatedBy.ID == claims.UserID {
			includeInternal = true
		}
		for _, a := range detail.Approvers {
			if a.UserID == claims.UserID {
				includeInternal = true
				break
			}
		}
	}

	comments, err := c.Service.Comments(ctx.UserContext(), ctx.Params("id"), includeInternal)
	if err != nil {
		return err
	}
	return ctx.JSON(comments)
}
