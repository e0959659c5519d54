package responses

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error          bool   `json:"error"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	HttpStatusCode int    `json:"-"`
}

var GeneralServerError = ErrorResponse{
	Error:          true,
	Code:           6,
	Message:        "Something went wrong. Please try again later",
	HttpStatusCode: 500,
}

var ServiceUnavailableError = ErrorResponse{
	Error:          true,
	Code:           7,
	Message:        "A dependency is unavailable",
	HttpStatusCode: 503,
}

var NotFoundError = ErrorResponse{
	Error:          true,
	Code:           9,
	Message:        "Not found",
	HttpStatusCode: 404,
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	c.Logger().Error(err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil && isErrAllowedForSentry(err) {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("Path", c.Path())
			hub.CaptureException(err)
		})
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusNotFound {
			c.JSON(he.Code, NotFoundError)
			return
		}
		c.JSON(he.Code, he.Message)
		return
	}
	c.JSON(GeneralServerError.HttpStatusCode, GeneralServerError)
}

// client errors are not worth reporting
func isErrAllowedForSentry(err error) bool {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code >= http.StatusInternalServerError
	}
	return true
}
