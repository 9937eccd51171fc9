package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/apperror"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Errors  []any  `json:"errors"`
	Data    any    `json:"data"`
}

// ErrorHandler renders the last error pushed with c.Error as the error
// envelope. Internal errors are logged with their cause; clients only see
// the generic message.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := apperror.From(c.Errors.Last().Err)
		message := appErr.Message
		if appErr.Kind == apperror.KindInternal {
			log.Error().
				Err(appErr).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("request_id", RequestID(c)).
				Msg("request failed")
			message = apperror.InternalMessage
		}

		if c.Writer.Written() {
			return
		}

		details := appErr.Details
		if details == nil || appErr.Kind == apperror.KindInternal {
			details = []any{}
		}
		c.JSON(appErr.Status(), ErrorResponse{
			Success: false,
			Message: message,
			Errors:  details,
			Data:    nil,
		})
	}
}

// Recovery turns panics into internal errors rendered by ErrorHandler.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Str("path", c.Request.URL.Path).
					Msg("recovered from panic")
				_ = c.Error(apperror.Internal("panic", fmt.Errorf("%v", rec)))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// BindingError converts a gin binding failure into a BadRequest carrying
// one message per invalid field.
func BindingError(err error) *apperror.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]any, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldMessage(fe))
		}
		return apperror.BadRequest("validation failed", details...)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return apperror.BadRequest("request body is required")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperror.BadRequest("malformed JSON body")
	case errors.As(err, &typeErr):
		return apperror.BadRequest("validation failed", fmt.Sprintf("%s has the wrong type", typeErr.Field))
	}
	return apperror.BadRequest("invalid request", err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// NotFound renders unmatched routes through the error envelope.
func NotFound(c *gin.Context) {
	_ = c.Error(apperror.NotFound(fmt.Sprintf("route %s %s not found", c.Request.Method, c.Request.URL.Path)))
	c.Abort()
}

// MethodNotAllowed mirrors NotFound for known paths with the wrong method.
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, ErrorResponse{
		Success: false,
		Message: "method not allowed",
		Errors:  []any{},
	})
	c.Abort()
}
