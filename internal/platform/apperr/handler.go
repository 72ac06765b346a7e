package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/db"
)

// Body is the JSON shape of every API error response.
type Body struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Resolve maps any error onto an *Error. Unknown errors become 500s.
func Resolve(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fromHTTPError(he)
	}

	switch {
	case errors.Is(err, db.ErrNotFound):
		return NotFound("resource")
	case db.IsUniqueViolation(err):
		msg := "a record with the same unique value already exists"
		if name := db.ConstraintName(err); name != "" {
			msg += " (" + name + ")"
		}
		return &Error{Status: http.StatusConflict, Code: CodeUniqueViolation, Message: msg}
	}

	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error"}
}

func fromHTTPError(he *echo.HTTPError) *Error {
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	code := CodeBadRequest
	switch he.Code {
	case http.StatusUnauthorized:
		code = CodeUnauthorized
	case http.StatusForbidden:
		code = CodeForbidden
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusMethodNotAllowed:
		code = CodeMethodNotAllowed
	case http.StatusConflict:
		code = CodeConflict
	default:
		if he.Code >= http.StatusInternalServerError {
			code = CodeInternal
		}
	}
	return &Error{Status: he.Code, Code: code, Message: msg}
}

// HTTPErrorHandler renders errors returned by handlers as Body. Server-side
// failures are logged with the request id.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		e := Resolve(err)
		if e.Status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		body := Body{
			Error:   http.StatusText(e.Status),
			Code:    e.Code,
			Message: e.Message,
			Fields:  e.Fields,
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(e.Status)
		} else {
			werr = c.JSON(e.Status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
