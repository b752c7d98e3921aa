package audit

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Controller struct {
	Service Service
}

func NewController(service Service) *Controller {
	return &Controller{Service: service}
}

// ListEntries godoc
// @Summary List audit entries
// @Description Compliance log query; administrators only
// @Tags audit
// @Produce json
// @Param request_id query string false "Filter by approval request"
// @Param actor_id query string false "Filter by actor"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {array} Entry
// @Router /api/audit [get]
func (c *Controller) ListEntries(ctx *fiber.Ctx) error {
	page, _ := strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.Query("limit", "20"), 10, 64)

	filters := map[string]interface{}{
		"actor_id": ctx.Query("actor_id"),
		"action":   ctx.Query("action"),
	}
	if rid := ctx.Query("request_id"); rid != "" {
		oid, err := primitive.ObjectIDFromHex(rid)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request_id"})
		}
		filters["request_id"] = oid
	}

	entries, err := c.Service.ListEntries(ctx.UserContext(), filters, page, limit)
	if err != nil {
		return err
	}
	return ctx.JSON(entries)
}
