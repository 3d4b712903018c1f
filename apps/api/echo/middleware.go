package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/kazi/core/account"
)

// identityMiddleware resolves the token claims into an account.Identity once per request.
func identityMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := getContextIdentity(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}

// roleMiddleware lets through the callers whose role satisfies allowed.
func roleMiddleware(allowed func(account.Role) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := getContextIdentity(ctx)
			if err != nil {
				return err
			}
			if !allowed(id.Role) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
