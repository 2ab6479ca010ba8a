package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/lunara/internal/access"
	agentdomain "github.com/smallbiznis/lunara/internal/agent/domain"
	artifactdomain "github.com/smallbiznis/lunara/internal/artifact/domain"
	auditdomain "github.com/smallbiznis/lunara/internal/audit/domain"
	credentialdomain "github.com/smallbiznis/lunara/internal/credential/domain"
	datasourcedomain "github.com/smallbiznis/lunara/internal/datasource/domain"
	organizationdomain "github.com/smallbiznis/lunara/internal/organization/domain"
	projectdomain "github.com/smallbiznis/lunara/internal/project/domain"
	"github.com/smallbiznis/lunara/internal/ratelimit"
	semanticmodeldomain "github.com/smallbiznis/lunara/internal/semanticmodel/domain"
	"github.com/smallbiznis/lunara/internal/warehouse"
	"github.com/smallbiznis/lunara/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if retryAfter, ok := retryAfterSeconds(lastErr.Err); ok {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if sentinel := validationSentinel(err); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code, err),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, access.ErrUnauthenticated):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, organizationdomain.ErrAlreadyMember),
		errors.Is(err, datasourcedomain.ErrConfigChanged),
		errors.Is(err, db.ErrStaleWrite):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, agentdomain.ErrUnresolvedReference):
		return http.StatusNotFound, errorPayload{
			Type:    "unresolved_reference",
			Message: "referenced semantic model could not be resolved",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, warehouse.ErrCollaborator):
		return http.StatusBadGateway, errorPayload{
			Type:    "collaborator_failure",
			Message: err.Error(),
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, credentialdomain.ErrEncryptionKeyMissing):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type and error_code into the request log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	organizationdomain.ErrInvalidName,
	organizationdomain.ErrInvalidPrincipal,
	organizationdomain.ErrInvalidOrganization,
	projectdomain.ErrInvalidID,
	projectdomain.ErrInvalidName,
	projectdomain.ErrInvalidPageToken,
	datasourcedomain.ErrInvalidID,
	datasourcedomain.ErrInvalidProject,
	datasourcedomain.ErrInvalidName,
	datasourcedomain.ErrInvalidType,
	datasourcedomain.ErrInvalidConfig,
	datasourcedomain.ErrInvalidSecret,
	datasourcedomain.ErrInvalidPageToken,
	datasourcedomain.ErrCredentialInConfig,
	credentialdomain.ErrInvalidSecret,
	semanticmodeldomain.ErrInvalidID,
	semanticmodeldomain.ErrInvalidProject,
	semanticmodeldomain.ErrInvalidDataSource,
	semanticmodeldomain.ErrInvalidName,
	semanticmodeldomain.ErrInvalidModel,
	semanticmodeldomain.ErrInvalidSourceType,
	semanticmodeldomain.ErrInvalidPageToken,
	agentdomain.ErrInvalidID,
	agentdomain.ErrInvalidProject,
	agentdomain.ErrInvalidName,
	agentdomain.ErrInvalidConfig,
	agentdomain.ErrInvalidPageToken,
	artifactdomain.ErrInvalidID,
	artifactdomain.ErrInvalidProject,
	artifactdomain.ErrInvalidName,
	artifactdomain.ErrInvalidType,
	artifactdomain.ErrTypeImmutable,
	artifactdomain.ErrInvalidStatus,
	artifactdomain.ErrInvalidContent,
	artifactdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidOrganization,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

func validationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, access.ErrNotFound),
		errors.Is(err, organizationdomain.ErrNotFound),
		errors.Is(err, organizationdomain.ErrNoProfile),
		errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, datasourcedomain.ErrNotFound),
		errors.Is(err, semanticmodeldomain.ErrNotFound),
		errors.Is(err, agentdomain.ErrNotFound),
		errors.Is(err, artifactdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_config_credential_key":
		return "config"
	case "invalid_type_change":
		return "type"
	}
	return strings.TrimPrefix(code, "invalid_")
}

// validationErrorMessage surfaces the detail wrapped around a sentinel, e.g.
// the offending key path of a credential in config.
func validationErrorMessage(code string, err error) string {
	if code == "invalid_request" {
		return "invalid request"
	}
	detail := strings.TrimSpace(strings.TrimPrefix(err.Error(), code))
	detail = strings.TrimSpace(strings.TrimPrefix(detail, ":"))
	if detail == "" {
		return "invalid value"
	}
	return detail
}

func retryAfterSeconds(err error) (int, bool) {
	var limited *ratelimit.RetryAfterError
	if !errors.As(err, &limited) || limited == nil {
		return 0, false
	}
	seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds, true
}
