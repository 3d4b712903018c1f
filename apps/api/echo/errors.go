package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errUnknownRole   = echo.NewHTTPError(http.StatusForbidden, "unknown role")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, v *core.Validator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
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
			code = http.StatusBadRequest
			message = fieldErrors(errors.Cause(v.Translate(origErr)).(*core.ValidationError))
		case *core.ValidationError:
			code = http.StatusBadRequest
			if origErr.Fields != nil {
				message = fieldErrors(origErr)
			} else {
				message = origErr.Error()
			}
		case *core.ForbiddenError:
			code, message = http.StatusForbidden, origErr.Error()
		case *core.NotFoundError:
			code, message = http.StatusNotFound, origErr.Error()
		case *core.InvalidStateError, *core.CapacityExceededError, *core.DuplicateMemberError:
			code, message = http.StatusConflict, origErr.Error()
		case *core.GoneError:
			code, message = http.StatusGone, origErr.Error()
		case *core.UpstreamUnavailableError:
			code, message = http.StatusServiceUnavailable, origErr.Error()
			logger.Warn(origErr.Error(), err, contextIdentity(ctx))
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextIdentity(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
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

func fieldErrors(vErr *core.ValidationError) map[string]string {
	flds := make(map[string]string, len(vErr.Fields))
	for _, fe := range vErr.Fields {
		flds[fe.Field] = fe.Error
	}
	return flds
}

// contextIdentity is the caller reported alongside server errors, if the request was authenticated.
func contextIdentity(ctx echo.Context) account.Identity {
	id, _ := getContextIdentity(ctx)
	return id
}
