package auth

import (
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
)

const ctxPrincipalKey = "principal"

// Principal is the authenticated identity resolved once at the auth boundary
// and threaded explicitly through every call.
type Principal struct {
	ID   uint
	Name string
	Role models.UserRole
}

// FromCtx returns the request's principal, set by JWTMiddleware.
func FromCtx(c *fiber.Ctx) (Principal, error) {
	p, ok := c.Locals(ctxPrincipalKey).(Principal)
	if !ok {
		return Principal{}, fiber.NewError(fiber.StatusForbidden, "No authenticated principal on request")
	}
	return p, nil
}
