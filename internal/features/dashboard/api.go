package dashboard

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
	group := app.Group("/api/dashboard", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Get("/", h.controller.GetDashboard)
	group.Get("/summary", h.controller.GetSummary)
}
