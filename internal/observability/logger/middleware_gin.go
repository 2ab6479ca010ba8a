package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/lunara/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HeaderRequestID carries the request id in and out of the API.
const HeaderRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to an error type and code.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id, then logs one entry per request with the
// route, the resource it addressed and the caller identity resolved by later
// middleware.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if resource, param := RouteResource(route); resource != "" {
			fields = append(fields,
				zap.String("resource", resource),
				zap.String("resource_id", c.Param(param)),
			)
		}

		var errorType string
		if lastErr := c.Errors.Last(); lastErr != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.String("error", lastErr.Err.Error()))
			}
		}

		level := requestLevel(route, status, errorType)
		if ce := FromContext(c.Request.Context()).Check(level, "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case route == "/metrics" || route == "/health":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status == http.StatusNotFound && errorType == "not_found":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// RouteResource names the resource a route addresses: the collection segment
// followed by the last path parameter, and that parameter's name. Routes
// without a parameter return empty strings.
//
//	/api/data-sources/:id/tables      -> data-sources, id
//	/api/projects/:projectId/agents   -> projects, projectId
func RouteResource(route string) (string, string) {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	var resource, param string
	for i := 1; i < len(segments); i++ {
		if strings.HasPrefix(segments[i], ":") && !strings.HasPrefix(segments[i-1], ":") {
			resource, param = segments[i-1], strings.TrimPrefix(segments[i], ":")
		}
	}
	return resource, param
}
