package handlers

import (
	"strconv"

	"propdesk/internal/adapters/http/middleware"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/response"
	"propdesk/internal/pkg/validator"

	"github.com/gofiber/fiber/v2"
)

// bind parses and validates the request body into dst. When ok is false a
// response has already been written and err must be returned as is.
func bind(c *fiber.Ctx, dst interface{}) (ok bool, err error) {
	if err := c.BodyParser(dst); err != nil {
		return false, response.BadRequest(c, "Invalid request body")
	}
	if errs := validator.ValidateStruct(dst); len(errs) > 0 {
		return false, response.ValidationFailed(c, errs)
	}
	return true, nil
}

// paramID parses a numeric path parameter
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// queryUint parses an optional numeric query parameter, 0 when absent
func queryUint(c *fiber.Ctx, name string) uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

// businessUnit resolves the business unit a request targets. Callers
// assigned to a single unit may omit business_unit_id.
func businessUnit(c *fiber.Ctx, ac *domain.AccessContext) uint {
	if id := queryUint(c, "business_unit_id"); id != 0 {
		return id
	}
	if units := ac.BusinessUnitIDs(); len(units) == 1 {
		return units[0]
	}
	return 0
}

// access returns the caller's AccessContext
func access(c *fiber.Ctx) *domain.AccessContext {
	return middleware.Access(c)
}
