package automation

import (
	"go-approvals/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Controller struct {
	Service Service
}

func NewController(service Service) *Controller {
	return &Controller{Service: service}
}

// CreateRule godoc
// @Summary Create an automation rule
// @Tags automation
// @Accept json
// @Produce json
// @Param rule body Rule true "Rule"
// @Success 201 {object} Rule
// @Router /api/automation/rules [post]
func (c *Controller) CreateRule(ctx *fiber.Ctx) error {
	var rule Rule
	if err := ctx.BodyParser(&rule); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if claims := middleware.Claims(ctx); claims != nil {
		rule.CreatedBy = claims.UserID
	}

	if err := c.Service.CreateRule(ctx.UserContext(), &rule); err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(rule)
}

// GetRule godoc
// @Summary Get an automation rule
// @Tags automation
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} Rule
// @Router /api/automation/rules/{id} [get]
func (c *Controller) GetRule(ctx *fiber.Ctx) error {
	rule, err := c.Service.GetRule(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(rule)
}

// ListRules godoc
// @Summary List automation rules
// @Tags automation
// @Produce json
// @Success 200 {array} Rule
// @Router /api/automation/rules [get]
func (c *Controller) ListRules(ctx *fiber.Ctx) error {
	rules, err := c.Service.ListRules(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(rules)
}

// UpdateRule godoc
// @Summary Update an automation rule
// @Tags automation
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param rule body Rule true "Rule"
// @Success 200 {object} Rule
// @Router /api/automation/rules/{id} [put]
func (c *Controller) UpdateRule(ctx *fiber.Ctx) error {
	oid, err := primitive.ObjectIDFromHex(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid rule id"})
	}

	var rule Rule
	if err := ctx.BodyParser(&rule); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	rule.ID = oid

	if err := c.Service.UpdateRule(ctx.UserContext(), &rule); err != nil {
		return err
	}
	return ctx.JSON(rule)
}

// DeleteRule godoc
// @Summary Delete an automation rule
// @Tags automation
// @Param id path string true "Rule ID"
// @Success 204
// @Router /api/automation/rules/{id} [delete]
func (c *Controller) DeleteRule(ctx *fiber.Ctx) error {
	if err := c.Service.DeleteRule(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
