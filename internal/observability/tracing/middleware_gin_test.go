package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareRecordsRouteSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(previous)

	orgID := uuid.New()
	r := gin.New()
	r.Use(GinMiddleware())
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), orgID))
	})
	r.GET("/api/data-sources/:id/tables", func(c *gin.Context) {
		_ = c.Error(errors.New("collaborator_failure: dial tcp 10.0.0.1:5432"))
		c.Status(http.StatusBadGateway)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/data-sources/ds-1/tables", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "HTTP GET /api/data-sources/:id/tables", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "data-sources", attrs["lunara.resource"].AsString())
	assert.Equal(t, "ds-1", attrs["lunara.resource_id"].AsString())
	assert.Equal(t, orgID.String(), attrs["lunara.org_id"].AsString())
	assert.Equal(t, int64(http.StatusBadGateway), attrs["http.status_code"].AsInt64())

	require.Len(t, span.Events(), 1)
	for _, kv := range span.Events()[0].Attributes {
		if kv.Key == "exception.message" {
			assert.Equal(t, "collaborator_failure", kv.Value.AsString())
		}
	}
}
