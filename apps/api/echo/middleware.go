package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/plp/edmodule/core/edmodule"
)

const contextModuleKey = "edmodule"

// authRequired rejects anonymous requests on routes behind the optional JWT middleware.
func authRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := getContextClaims(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}

func staffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if claims.IsStaff {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// moduleMiddleware loads the module named by the ":code" path param.
// Hidden modules only exist for staff.
func moduleMiddleware(svc *edmodule.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			m, err := svc.Get(ctx.Request().Context(), ctx.Param("code"))
			if err != nil {
				if errors.Cause(err) == edmodule.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "getting module")
			}
			if m.Status == edmodule.StatusHidden && !contextIsStaff(ctx) {
				return errHttpNotFound
			}
			ctx.Set(contextModuleKey, m)
			return next(ctx)
		}
	}
}

func getContextModule(ctx echo.Context) (edmodule.Module, error) {
	if m, ok := ctx.Get(contextModuleKey).(edmodule.Module); ok {
		return m, nil
	}
	return edmodule.Module{}, errors.New("module not found in echo.Context")
}
