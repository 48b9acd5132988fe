package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/promo"
)

// Promo check statuses, as the storefront expects them.
const (
	promoStatusOK    = 0
	promoStatusError = 1

	promoValidMessage = "promo code is valid"
)

type promoApi struct {
	svc *promo.Service
}

func registerPromoAPI(g *echo.Group, auth *authenticator, svc *promo.Service) {
	api := promoApi{svc: svc}

	pg := g.Group("/promo-codes")
	pg.POST("/:code/validate", api.validate)
	pg.POST("/:code/calculate", api.calculate)

	sg := pg.Group("", auth.required, staffMiddleware)
	sg.GET("", api.query)
	sg.POST("", api.create)
}

// Handlers

func (api *promoApi) create(ctx echo.Context) error {
	var data promo.NewPromoCode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPromoCode")
	}
	pc, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating promo code")
	}
	return ctx.JSON(http.StatusCreated, pc)
}

func (api *promoApi) query(ctx echo.Context) error {
	filter := promo.QueryFilter{ProductType: core.CleanString(ctx.QueryParam("product_type"), true /* lower */)}
	if v := ctx.QueryParam("product_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "product_id", Error: "must be an integer"})
		}
		filter.ProductID = id
	}
	if ctx.QueryParam("active") == "true" {
		filter.ActiveOn = core.NowFunc()
	}

	codes, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying promo codes")
	}
	if codes == nil {
		codes = []promo.PromoCode{}
	}
	return ctx.JSON(http.StatusOK, codes)
}

func (api *promoApi) validate(ctx echo.Context) error {
	var data PromoCheckRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PromoCheckRequest")
	}
	data.Clean()

	if _, err := api.svc.Validate(ctx.Request().Context(), ctx.Param("code"), data.ProductID, data.ProductType); err != nil {
		return api.rejection(ctx, err)
	}
	return ctx.JSON(http.StatusOK, PromoCheckResponse{Status: promoStatusOK, Message: promoValidMessage})
}

func (api *promoApi) calculate(ctx echo.Context) error {
	var data PromoCalcRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PromoCalcRequest")
	}
	data.Clean()
	rctx := ctx.Request().Context()

	pc, err := api.svc.Validate(rctx, ctx.Param("code"), data.ProductID, data.ProductType)
	if err != nil {
		return api.rejection(ctx, err)
	}
	price, err := api.svc.Calculate(rctx, pc, promo.CalcRequest{
		ProductID:       data.ProductID,
		OnlyFirstCourse: data.OnlyFirstCourse,
		SessionID:       data.SessionID,
	})
	if err != nil {
		return api.rejection(ctx, err)
	}
	return ctx.JSON(http.StatusOK, PromoCheckResponse{Status: promoStatusOK, NewPrice: &price})
}

// rejection answers with an error status when err tells why the code cannot be used.
func (api *promoApi) rejection(ctx echo.Context, err error) error {
	if !(promo.IsRejection(err) || errors.Cause(err) == promo.ErrNotFound) {
		return err
	}
	return ctx.JSON(http.StatusOK, PromoCheckResponse{Status: promoStatusError, Message: errors.Cause(err).Error()})
}

type (
	PromoCheckRequest struct {
		ProductID   int    `json:"product_id"`
		ProductType string `json:"product_type"`
	}

	PromoCalcRequest struct {
		PromoCheckRequest
		OnlyFirstCourse bool `json:"only_first_course"`
		SessionID       int  `json:"session_id"`
	}

	PromoCheckResponse struct {
		Status   int              `json:"status"`
		Message  string           `json:"message,omitempty"`
		NewPrice *decimal.Decimal `json:"new_price,omitempty"`
	}
)

func (r *PromoCheckRequest) Clean() {
	r.ProductType = core.CleanString(r.ProductType, true /* lower */)
	if r.ProductType == "" {
		r.ProductType = promo.ProductCourse
	}
}
