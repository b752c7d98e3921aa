package dashboard

import (
	"go-approvals/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type Controller struct {
	Service Service
}

func NewController(service Service) *Controller {
	return &Controller{Service: service}
}

// GetDashboard godoc
// @Summary Dashboard projection for the current user
// @Description Status counts, my pending approvals, requests I created and recent activity; recomputed on every read
// @Tags dashboard
// @Produce json
// @Success 200 {object} Dashboard
// @Router /api/dashboard [get]
func (c *Controller) GetDashboard(ctx *fiber.Ctx) error {
	claims := middleware.Claims(ctx)
	dashboard, err := c.Service.GetDashboard(ctx.UserContext(), claims.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(dashboard)
}

// GetSummary godoc
// @Summary Organization-wide approval summary
// @Tags dashboard
// @Produce json
// @Success 200 {object} Summary
// @Router /api/dashboard/summary [get]
func (c *Controller) GetSummary(ctx *fiber.Ctx) error {
	summary, err := c.Service.GetSummary(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(summary)
}
