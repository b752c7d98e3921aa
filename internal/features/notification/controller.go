package notification

import (
	"strconv"

	"go-approvals/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type Controller struct {
	Service Service
}

func NewController(service Service) *Controller {
	return &Controller{Service: service}
}

// ListMine godoc
// @Summary List my notifications
// @Tags notifications
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /api/notifications [get]
func (c *Controller) ListMine(ctx *fiber.Ctx) error {
	claims := middleware.Claims(ctx)
	page, _ := strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.Query("limit", "20"), 10, 64)

	notifications, total, err := c.Service.GetUserNotifications(ctx.UserContext(), claims.UserID, page, limit)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{
		"items": notifications,
		"total": total,
	})
}

// UnreadCount godoc
// @Summary Count my unread notifications
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]int64
// @Router /api/notifications/unread-count [get]
func (c *Controller) UnreadCount(ctx *fiber.Ctx) error {
	claims := middleware.Claims(ctx)
	count, err := c.Service.GetUnreadCount(ctx.UserContext(), claims.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"count": count})
}

// MarkRead godoc
// @Summary Mark one notification as read
// @Tags notifications
// @Param id path string true "Notification ID"
// @Success 204 {object} nil
// @Router /api/notifications/{id}/read [post]
func (c *Controller) MarkRead(ctx *fiber.Ctx) error {
	claims := middleware.Claims(ctx)
	if err := c.Service.MarkAsRead(ctx.UserContext(), ctx.Params("id"), claims.UserID); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// MarkAllRead godoc
// @Summary Mark all my notifications as read
// @Tags notifications
// @Success 204 {object} nil
// @Router /api/notifications/read-all [post]
func (c *Controller) MarkAllRead(ctx *fiber.Ctx) error {
	claims := middleware.Claims(ctx)
	if err := c.Service.MarkAllAsRead(ctx.UserContext(), claims.UserID); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
