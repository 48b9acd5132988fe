package echoapi

import (
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/enrollment"
	"github.com/plp/edmodule/core/progress"
	"github.com/plp/edmodule/core/promo"
	"github.com/plp/edmodule/core/rating"
	"github.com/plp/edmodule/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// domainErrorCodes maps the sentinel errors of the core packages to response codes.
var domainErrorCodes = map[error]int{
	user.ErrNotFound:                   http.StatusNotFound,
	course.ErrNotFound:                 http.StatusNotFound,
	course.ErrSessionNotFound:          http.StatusNotFound,
	edmodule.ErrNotFound:               http.StatusNotFound,
	edmodule.ErrEnrollmentTypeNotFound: http.StatusNotFound,
	enrollment.ErrNotFound:             http.StatusNotFound,
	enrollment.ErrProgressNotFound:     http.StatusNotFound,
	rating.ErrNotFound:                 http.StatusNotFound,
	promo.ErrNotFound:                  http.StatusNotFound,
	enrollment.ErrEnrollmentClosed:     http.StatusConflict,
	promo.ErrUsedUp:                    http.StatusConflict,
	progress.ErrTimeout:                http.StatusGatewayTimeout,
	progress.ErrUnavailable:            http.StatusServiceUnavailable,
	progress.ErrCommunication:          http.StatusBadGateway,
}

// domainErrorCode looks up err in domainErrorCodes; slice-backed errors (validator.ValidationErrors) are not hashable.
func domainErrorCode(err error) (int, bool) {
	if err == nil || !reflect.TypeOf(err).Comparable() {
		return 0, false
	}
	c, ok := domainErrorCodes[err]
	return c, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if c, ok := domainErrorCode(cause); ok {
			code, message = c, cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			case *core.ArgumentError:
				code = http.StatusBadRequest
				message = origErr.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.UserID()
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
