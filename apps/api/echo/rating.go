package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/plp/edmodule/core/rating"
)

type ratingApi struct {
	svc *rating.Service
}

func registerRatingAPI(g *echo.Group, auth *authenticator, svc *rating.Service) {
	api := ratingApi{svc: svc}

	rg := g.Group("/ratings", auth.required, staffMiddleware)
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.moderate)
}

func (api *ratingApi) retrieve(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	r, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting rating")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *ratingApi) moderate(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data rating.Moderation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Moderation")
	}
	r, err := api.svc.Moderate(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "moderating rating")
	}
	return ctx.JSON(http.StatusOK, r)
}
