package audit

import (
	"go-approvals/internal/config"
	"go-approvals/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type Api struct {
	controller *Controller
	config     *config.Config
}

func NewApi(controller *Controller, config *config.Config) *Api {
	return &Api{
		controller: controller,
		config:     config,
	}
}

func (h *Api) Setup(app *fiber.App) {
	// Compliance log stays off the normal UI surface: admin only.
	group := app.Group("/api/audit", middleware.AuthMiddleware(h.config.SkipAuth), middleware.AdminMiddleware())
	group.Get("/", h.controller.ListEntries)
}
