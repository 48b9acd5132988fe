package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/enrollment"
)

type courseApi struct {
	svc         *course.Service
	enrollments *enrollment.Service
}

func registerCourseAPI(g *echo.Group, auth *authenticator, svc *course.Service, enrollments *enrollment.Service) {
	api := courseApi{svc: svc, enrollments: enrollments}

	cg := g.Group("/courses", auth.required)
	cg.GET("/:id/access", api.access)
}

// access tells what the user may do with a course session through the modules bundling it.
func (api *courseApi) access(ctx echo.Context) error {
	courseID, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	sessionID, err := intParam(ctx, "session_id")
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	c, err := api.svc.Get(rctx, courseID)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	s, ok := c.Session(sessionID)
	if !ok {
		return course.ErrSessionNotFound
	}
	access, err := api.enrollments.CourseAccess(rctx, contextUserID(ctx), s)
	if err != nil {
		return errors.Wrap(err, "getting course access")
	}
	return ctx.JSON(http.StatusOK, access)
}
