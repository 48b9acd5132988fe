package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/plp/edmodule/core/enrollment"
)

func (api *moduleApi) enrollment(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	userID := contextUserID(ctx)

	e, err := api.enrollments.Get(rctx, userID, m.ID)
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	reason, err := api.enrollments.ReasonForUser(rctx, userID, m.ID)
	if err != nil {
		return errors.Wrap(err, "getting enrollment reason")
	}
	var prog *enrollment.Progress
	if p, err := api.enrollments.Progress(rctx, e.ID); err == nil {
		prog = &p
	} else if errors.Cause(err) != enrollment.ErrProgressNotFound {
		return errors.Wrap(err, "getting enrollment progress")
	}
	unsubscribed, err := api.enrollments.IsUnsubscribed(rctx, userID, m.ID)
	if err != nil {
		return errors.Wrap(err, "checking unsubscribe")
	}

	return ctx.JSON(http.StatusOK, EnrollmentResponse{
		Enrollment:   e,
		Reason:       reason,
		Progress:     prog,
		Unsubscribed: unsubscribed,
	})
}

func (api *moduleApi) enroll(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	e, err := api.enrollments.Enroll(ctx.Request().Context(), contextUserID(ctx), m)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *moduleApi) unenroll(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	e, err := api.enrollments.Unenroll(ctx.Request().Context(), contextUserID(ctx), m.ID)
	if err != nil {
		return errors.Wrap(err, "unenrolling")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *moduleApi) recordPayment(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}

	var data enrollment.NewPayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	e, r, err := api.enrollments.RecordPayment(ctx.Request().Context(), m.ID, data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, EnrollmentResponse{Enrollment: e, Reason: &r})
}

func (api *moduleApi) syncProgress(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	e, err := api.enrollments.Get(rctx, contextUserID(ctx), m.ID)
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	updated, err := api.syncer.UpdateEnrollmentProgress(rctx, e)
	if err != nil {
		return errors.Wrap(err, "updating enrollment progress")
	}

	res := ProgressResponse{Updated: updated}
	if p, err := api.enrollments.Progress(rctx, e.ID); err == nil {
		res.Progress = &p
	} else if errors.Cause(err) != enrollment.ErrProgressNotFound {
		return errors.Wrap(err, "getting enrollment progress")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *moduleApi) projectAccess(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	d, err := api.svc.Details(rctx, m)
	if err != nil {
		return errors.Wrap(err, "getting module details")
	}
	ok, err := api.enrollments.MayEnrollOnProject(rctx, d, contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "checking project access")
	}
	return ctx.JSON(http.StatusOK, ProjectAccessResponse{MayEnroll: ok})
}

func (api *moduleApi) unsubscribe(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	if err = api.enrollments.Unsubscribe(ctx.Request().Context(), contextUserID(ctx), m.ID); err != nil {
		return errors.Wrap(err, "unsubscribing")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *moduleApi) resubscribe(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	if err = api.enrollments.Resubscribe(ctx.Request().Context(), contextUserID(ctx), m.ID); err != nil {
		return errors.Wrap(err, "resubscribing")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	EnrollmentResponse struct {
		Enrollment   enrollment.Enrollment `json:"enrollment"`
		Reason       *enrollment.Reason    `json:"reason"`
		Progress     *enrollment.Progress  `json:"progress,omitempty"`
		Unsubscribed bool                  `json:"unsubscribed"`
	}

	ProgressResponse struct {
		Updated  bool                 `json:"updated"`
		Progress *enrollment.Progress `json:"progress"`
	}

	ProjectAccessResponse struct {
		MayEnroll bool `json:"may_enroll"`
	}
)
