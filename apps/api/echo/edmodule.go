package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/enrollment"
	"github.com/plp/edmodule/core/pricing"
	"github.com/plp/edmodule/core/progress"
	"github.com/plp/edmodule/core/rating"
)

type moduleApi struct {
	conf        *core.Config
	svc         *edmodule.Service
	pricing     *pricing.Service
	enrollments *enrollment.Service
	ratings     *rating.Service
	syncer      *progress.Syncer
}

func registerModuleAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := moduleApi{
		conf:        deps.Conf,
		svc:         deps.ModuleSvc,
		pricing:     deps.PricingSvc,
		enrollments: deps.EnrollmentSvc,
		ratings:     deps.RatingSvc,
		syncer:      deps.Syncer,
	}

	// token is optional: prices and visibility depend on who asks
	mg := g.Group("/modules", auth.optional)
	mg.GET("", api.query)
	mg.POST("", api.create, staffMiddleware)

	dg := mg.Group("/:code", moduleMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staffMiddleware)
	dg.GET("/price", api.price)
	dg.GET("/enrollment-types", api.queryEnrollmentTypes)
	dg.POST("/enrollment-types", api.saveEnrollmentType, staffMiddleware)
	dg.GET("/feedback", api.feedback)
	dg.POST("/ratings", api.rate, authRequired)

	// enrollment endpoints; no sub-group here, Group.Use would shadow the "/:code" routes above
	dg.GET("/enrollment", api.enrollment, authRequired)
	dg.POST("/enroll", api.enroll, authRequired)
	dg.DELETE("/enroll", api.unenroll, authRequired)
	dg.POST("/payments", api.recordPayment, staffMiddleware)
	dg.POST("/progress", api.syncProgress, authRequired)
	dg.GET("/project-access", api.projectAccess, authRequired)
	dg.POST("/unsubscribe", api.unsubscribe, authRequired)
	dg.DELETE("/unsubscribe", api.resubscribe, authRequired)
}

// Handlers

func (api *moduleApi) query(ctx echo.Context) error {
	filter := new(edmodule.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []edmodule.Module{})
	}
	if contextIsStaff(ctx) {
		filter.Statuses = ctx.QueryParams()["status"]
	} else {
		filter.Statuses = []string{edmodule.StatusPublished}
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	modules, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying modules")
	}
	if modules == nil {
		modules = []edmodule.Module{}
	}
	return ctx.JSON(http.StatusOK, modules)
}

func (api *moduleApi) create(ctx echo.Context) error {
	var data edmodule.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}

	m, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating module")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *moduleApi) retrieve(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	d, err := api.svc.Details(rctx, m)
	if err != nil {
		return errors.Wrap(err, "getting module details")
	}
	related, err := api.svc.Related(rctx, d)
	if err != nil {
		return errors.Wrap(err, "getting related items")
	}
	var verified *edmodule.EnrollmentType
	if et, err := api.svc.VerifiedEnrollmentType(rctx, m.ID); err == nil {
		verified = &et
	} else if errors.Cause(err) != edmodule.ErrEnrollmentTypeNotFound {
		return errors.Wrap(err, "getting verified enrollment type")
	}

	return ctx.JSON(http.StatusOK, newModuleDetail(d, core.NowFunc(), api.conf.Location(), verified, related))
}

func (api *moduleApi) update(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}

	var data edmodule.UpdateModule
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateModule")
	}
	m, err = api.svc.Update(ctx.Request().Context(), m.Code, data)
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *moduleApi) price(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	userID := contextUserID(ctx)

	d, err := api.svc.Details(rctx, m)
	if err != nil {
		return errors.Wrap(err, "getting module details")
	}
	pl, err := api.pricing.PriceList(rctx, d, userID)
	if err != nil {
		return errors.Wrap(err, "computing price list")
	}
	stb, err := api.pricing.FirstSessionToBuy(rctx, d, userID)
	if err != nil {
		return errors.Wrap(err, "getting first session to buy")
	}
	return ctx.JSON(http.StatusOK, PriceResponse{PriceList: pl, FirstSessionToBuy: stb})
}

func (api *moduleApi) queryEnrollmentTypes(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	excludeExpired, active := true, true
	if v := ctx.QueryParam("exclude_expired"); v != "" {
		if excludeExpired, err = strconv.ParseBool(v); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "exclude_expired", Error: "must be a boolean"})
		}
	}
	if v := ctx.QueryParam("active"); v != "" {
		if active, err = strconv.ParseBool(v); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "active", Error: "must be a boolean"})
		}
	}

	types, err := api.svc.AvailableEnrollmentTypes(ctx.Request().Context(), m.ID, ctx.QueryParam("mode"), excludeExpired, active)
	if err != nil {
		return errors.Wrap(err, "querying enrollment types")
	}
	return ctx.JSON(http.StatusOK, types)
}

func (api *moduleApi) saveEnrollmentType(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}

	var data edmodule.NewEnrollmentType
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollmentType")
	}
	et, err := api.svc.SaveEnrollmentType(ctx.Request().Context(), m.ID, data)
	if err != nil {
		return errors.Wrap(err, "saving enrollment type")
	}
	return ctx.JSON(http.StatusOK, et)
}

func (api *moduleApi) feedback(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}
	ratings, err := api.ratings.FeedbackList(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "getting feedback list")
	}
	return ctx.JSON(http.StatusOK, FeedbackResponse{
		Rating:       m.Rating(),
		CountRatings: m.CountRatings,
		Feedback:     ratings,
	})
}

func (api *moduleApi) rate(ctx echo.Context) error {
	m, err := getContextModule(ctx)
	if err != nil {
		return err
	}

	var data rating.NewRating
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRating")
	}
	r, err := api.ratings.Rate(ctx.Request().Context(), contextUserID(ctx), m.ID, data)
	if err != nil {
		return errors.Wrap(err, "rating module")
	}
	return ctx.JSON(http.StatusOK, r)
}

// Responses

type (
	PriceResponse struct {
		pricing.PriceList
		FirstSessionToBuy *pricing.SessionToBuy `json:"first_session_to_buy"`
	}

	FeedbackResponse struct {
		Rating       float64         `json:"rating"`
		CountRatings int             `json:"count_ratings"`
		Feedback     []rating.Rating `json:"feedback"`
	}

	ModuleCourse struct {
		course.Course
		NextSession *course.Session `json:"next_session"`
	}

	ModuleDetail struct {
		edmodule.Module
		Rating                 float64                  `json:"rating"`
		SubtitleItems          []string                 `json:"subtitle_items"`
		RequirementsList       []string                 `json:"requirements_list"`
		Courses                []ModuleCourse           `json:"courses"`
		CountCourses           int                      `json:"count_courses"`
		Duration               int                      `json:"duration"`
		WholeWork              int                      `json:"whole_work"`
		Workload               int                      `json:"workload"`
		Instructors            []string                 `json:"instructors"`
		Categories             []string                 `json:"categories"`
		AuthorsAndPartners     []string                 `json:"authors_and_partners"`
		Schedule               []edmodule.ScheduleItem  `json:"schedule"`
		Profit                 []string                 `json:"profit"`
		StartDate              *time.Time               `json:"start_date"`
		StatusParams           course.StatusParams      `json:"status_params"`
		MayEnroll              bool                     `json:"may_enroll"`
		VerifiedEnrollmentType *edmodule.EnrollmentType `json:"verified_enrollment_type"`
		Related                []edmodule.RelatedItem   `json:"related"`
	}
)

func newModuleDetail(d edmodule.Details, now time.Time, loc *time.Location, verified *edmodule.EnrollmentType, related []edmodule.RelatedItem) ModuleDetail {
	courses := make([]ModuleCourse, 0, len(d.Courses))
	for _, c := range d.Courses {
		courses = append(courses, ModuleCourse{Course: c, NextSession: c.NextSession(now)})
	}
	return ModuleDetail{
		Module:                 d.Module,
		Rating:                 d.Rating(),
		SubtitleItems:          d.SubtitleItems(),
		RequirementsList:       d.RequirementsList(),
		Courses:                courses,
		CountCourses:           d.CountCourses(),
		Duration:               d.Duration(now),
		WholeWork:              d.WholeWork(now),
		Workload:               d.Workload(now),
		Instructors:            d.Instructors(now),
		Categories:             d.Categories(),
		AuthorsAndPartners:     d.AuthorsAndPartners(),
		Schedule:               d.Schedule(),
		Profit:                 d.Profit(),
		StartDate:              d.StartDate(now),
		StatusParams:           d.StatusParams(now, loc),
		MayEnroll:              d.MayEnroll(now),
		VerifiedEnrollmentType: verified,
		Related:                related,
	}
}
