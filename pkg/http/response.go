package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"FKSEngine/pkg/logger"
)

// Handler registers its routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// Envelope is the body of every API response. Errors is set only on failures.
type Envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []*AppError `json:"errors,omitempty"`
}

// List is the data of collection responses.
type List struct {
	Rows  interface{} `json:"rows"`
	Total int         `json:"total"`
}

func write(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Status: status, Message: http.StatusText(status), Data: data})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return write(c, http.StatusOK, data)
}

// AcceptedResponse acknowledges input that was applied asynchronously.
func AcceptedResponse(c echo.Context, data interface{}) error {
	return write(c, http.StatusAccepted, data)
}

func ListResponse(c echo.Context, rows interface{}, total int) error {
	return write(c, http.StatusOK, List{Rows: rows, Total: total})
}

// ErrorResponse writes err with its own status when it is an AppError and a generic 500
// otherwise, so internal messages never reach clients.
func ErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalErrorf("internal error").WithError(err)
	}
	return c.JSON(appErr.Status, Envelope{
		Status:  appErr.Status,
		Message: http.StatusText(appErr.Status),
		Errors:  []*AppError{appErr},
	})
}

// ErrorHandler renders errors returned by routes and by echo itself (unknown route, bad
// method) in the envelope.
func ErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			err = Errorf(he.Code, "ERR_HTTP", "%s", msg)
		}
		var appErr *AppError
		if !errors.As(err, &appErr) || appErr.Status >= http.StatusInternalServerError {
			log.Error("request failed", logger.String("path", c.Path()), logger.Error(err))
		}
		if werr := ErrorResponse(c, err); werr != nil {
			log.Warn("write error response", logger.Error(werr))
		}
	}
}
