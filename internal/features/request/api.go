package request

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
	requests := app.Group("/api/requests", middleware.AuthMiddleware(h.config.SkipAuth))

	requests.Post("/", h.controller.CreateRequest)
	requests.Get("/:id", h.controller.GetRequest)
	requests.Post("/:id/decision", h.controller.SubmitDecision)
	requests.Post("/:id/comments", h.controller.AddComment)
	requests.Get("/:id/comments", h.controller.GetComments)
	requests.Put("/:id/due-date", h.controller.UpdateDueDate)
	requests.Get("/:id/history", h.controller.GetHistory)
}
