package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// storageRetryAfter is the Retry-After value, in seconds, of storage failures.
const storageRetryAfter = "1"

// errorResponse maps err to its status code and body.
// serverErr is set for the errors that must be reported.
func errorResponse(err error, translator ut.Translator) (code int, message interface{}, serverErr bool) {
	switch origErr := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if origErr == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, origErr.Message, false
		}
		if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
			origErr = herr
		}
		return origErr.Code, origErr.Message, origErr.Code >= http.StatusInternalServerError
	case validator.ValidationErrors:
		fldErrs := make(map[string]string, len(origErr))
		for _, vErr := range origErr {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return http.StatusBadRequest, fldErrs, false
	case *core.ValidationError:
		if origErr.Fields == nil {
			return http.StatusBadRequest, origErr.Error(), false
		}
		fldErrs := make(map[string]string, len(origErr.Fields))
		for _, fErr := range origErr.Fields {
			fldErrs[fErr.Field] = fErr.Error
		}
		return http.StatusBadRequest, fldErrs, false
	case *core.NotFoundError:
		return http.StatusNotFound, origErr.Error(), false
	}

	// StorageError has a Cause, so Cause() walks past it
	var storageErr *core.StorageError
	if errors.As(err, &storageErr) {
		return http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), true
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), true
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message, serverErr := errorResponse(err, translator)

		if serverErr {
			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(http.StatusText(code), errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()), usr)

			if code == http.StatusServiceUnavailable {
				ctx.Response().Header().Set("Retry-After", storageRetryAfter)
			}
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead {
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				logger.Error("writing error response", err)
			}
		}
	}
}
