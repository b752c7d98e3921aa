package automation

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
	group := app.Group("/api/automation/rules", middleware.AuthMiddleware(h.config.SkipAuth), middleware.AdminMiddleware())
	group.Post("/", h.controller.CreateRule)
	group.Get("/", h.controller.ListRules)
	group.Get("/:id", h.controller.GetRule)
	group.Put("/:id", h.controller.UpdateRule)
	group.Delete("/:id", h.controller.DeleteRule)
}
