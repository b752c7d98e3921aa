package report

import (
	"github.com/gofiber/fiber/v2"
)

type Controller struct {
	Service Service
}

func NewController(service Service) *Controller {
	return &Controller{Service: service}
}

// ExportHistory godoc
// @Summary Export a request's history as Excel
// @Tags reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Request ID"
// @Success 200 {file} file
// @Router /api/reports/requests/{id} [get]
func (c *Controller) ExportHistory(ctx *fiber.Ctx) error {
	data, filename, err := c.Service.ExportHistory(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	ctx.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return ctx.Send(data)
}

// ExportSummary godoc
// @Summary Export the approvals summary as Excel
// @Tags reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /api/reports/summary [get]
func (c *Controller) ExportSummary(ctx *fiber.Ctx) error {
	data, filename, err := c.Service.ExportSummary(ctx.UserContext())
	if err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	ctx.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return ctx.Send(data)
}
