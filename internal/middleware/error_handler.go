package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// ErrorResponse is the body of every failed API response.
type ErrorResponse struct {
	Error *errors.AppError `json:"error"`
}

// Recovery turns a panicking handler into a 500 response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				ctx := c.Request.Context()
				telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
					"operation":   "error_handler_panic",
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
					"service":     "middleware",
				}).Error("Panic recovered in HTTP handler")

				appErr := errors.NewInternalError(fmt.Sprintf("Panic in handler: %v", r), nil).
					WithCorrelationID(telemetry.GetCorrelationID(ctx))
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: appErr})
			}
		}()
		c.Next()
	}
}

// ErrorHandler renders the last error a handler attached with c.Error,
// unless the handler already wrote a response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		ctx := c.Request.Context()
		appErr := ToAppError(ctx, c.Errors.Last().Err)
		logError(ctx, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorResponse{Error: appErr})
	}
}

// ToAppError converts err to an AppError carrying the request correlation ID.
// Unknown errors become internal errors.
func ToAppError(ctx context.Context, err error) *errors.AppError {
	correlationID := telemetry.GetCorrelationID(ctx)

	appErr, ok := errors.AsAppError(err)
	if !ok {
		return errors.NewInternalError("An unexpected error occurred", err).
			WithCorrelationID(correlationID)
	}
	if appErr.CorrelationID == "" && correlationID != "" {
		clone := *appErr
		clone.CorrelationID = correlationID
		appErr = &clone
	}
	if appErr.HTTPStatus == 0 {
		appErr.HTTPStatus = http.StatusInternalServerError
	}
	return appErr
}

// logError logs the error with a level based on its type
func logError(ctx context.Context, appErr *errors.AppError) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation":  "error_handler_log",
		"error_type": string(appErr.Type),
		"error_code": appErr.Code,
		"service":    "middleware",
	})
	for k, v := range appErr.Metadata {
		logger = logger.WithField(k, v)
	}
	if appErr.Cause != nil {
		logger = logger.WithField("cause", appErr.Cause.Error())
	}
	if appErr.Details != "" {
		logger = logger.WithField("details", appErr.Details)
	}

	switch appErr.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeRateLimit, errors.ErrorTypeCapabilityUnavailable:
		logger.Warn(appErr.Message)
	case errors.ErrorTypeNotFound, errors.ErrorTypeConflict:
		logger.Info(appErr.Message)
	default:
		logger.Error(appErr.Message)
	}
}
