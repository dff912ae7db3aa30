// Copyright 2024 Interview Questions Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON error body returned by the HTTP API
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorCode represents standard error codes used across the API
type ErrorCode string

const (
	// Client errors (4xx)
	ErrorCodeBadRequest ErrorCode = "BAD_REQUEST"
	ErrorCodeNotFound   ErrorCode = "NOT_FOUND"

	// Server errors (5xx)
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodeGenerationFailed   ErrorCode = "GENERATION_FAILED"
	ErrorCodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
)

// ServiceError is an error carrying its HTTP status and public message
type ServiceError struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Internal
}

// ToErrorResponse converts a ServiceError to an ErrorResponse
func (e *ServiceError) ToErrorResponse(requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
}

// NewServiceError creates a new ServiceError with the given parameters
func NewServiceError(message string, code ErrorCode, statusCode int, internal error) *ServiceError {
	return &ServiceError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeBadRequest, http.StatusBadRequest, internal)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeNotFound, http.StatusNotFound, internal)
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeInternalError, http.StatusInternalServerError, internal)
}

// NewGenerationError reports that questions could not be produced
func NewGenerationError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeGenerationFailed, http.StatusInternalServerError, internal)
}

// NewConfigurationError reports a server-side misconfiguration
func NewConfigurationError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeConfiguration, http.StatusInternalServerError, internal)
}

// ErrorHandler converts errors into ServiceErrors and writes them
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger}
}

// WrapError returns err as a ServiceError, classifying unknown errors by message
func (eh *ErrorHandler) WrapError(err error, operation string) *ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	msg := strings.ToLower(err.Error())
	var wrapped *ServiceError
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		wrapped = NewServiceError("The operation is taking longer than expected. Please try again.",
			ErrorCodeTimeout, http.StatusGatewayTimeout, err)
	case strings.Contains(msg, "circuit breaker"):
		wrapped = NewServiceError("The service is temporarily unavailable. Please try again in a few minutes.",
			ErrorCodeServiceUnavailable, http.StatusServiceUnavailable, err)
	default:
		wrapped = NewInternalError(fmt.Sprintf("An error occurred while %s", operation), err)
	}

	if eh != nil {
		eh.logger.Error("Error occurred during operation",
			zap.String("operation", operation),
			zap.Error(err),
			zap.String("error_code", string(wrapped.Code)))
	}

	return wrapped
}

// WriteErrorResponse writes err as a JSON ErrorResponse and aborts the request
func (eh *ErrorHandler) WriteErrorResponse(c *gin.Context, err error, requestID string) {
	serviceErr := eh.WrapError(err, "processing request")
	if serviceErr == nil {
		serviceErr = NewInternalError("An error occurred while processing request", nil)
	}
	c.AbortWithStatusJSON(serviceErr.StatusCode, serviceErr.ToErrorResponse(requestID))
}

// LogError logs an error with appropriate context
func (eh *ErrorHandler) LogError(err error, operation string, fields ...zap.Field) {
	if err == nil || eh == nil {
		return
	}

	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
	}
	logFields = append(logFields, fields...)

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		logFields = append(logFields,
			zap.String("error_code", string(serviceErr.Code)),
			zap.Int("status_code", serviceErr.StatusCode))
	}

	eh.logger.Error("Operation failed", logFields...)
}
