package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGetTraceID(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"traceparent", map[string]string{TraceParentHeader: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}, "4bf92f3577b34da6a3ce929d0e0e4736"},
		{"x-trace-id", map[string]string{TraceIDHeader: "abc123"}, "abc123"},
		{"traceparent wins", map[string]string{TraceParentHeader: "00-aaaa-bbbb-01", TraceIDHeader: "abc123"}, "aaaa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetTraceID(c))
		})
	}
}

func TestGetTraceID_Generated(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	id := GetTraceID(c)
	assert.Len(t, id, 32)
	assert.NotEqual(t, id, GetTraceID(c))
}

func TestLoggingMiddleware_SetsHeader(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		assert.Equal(t, "abc123", c.GetString("trace_id"))
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "abc123")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "abc123", w.Header().Get(TraceIDHeader))
}

func newClientRouter() *gin.Engine {
	r := gin.New()
	r.Use(ClientMiddleware(ClientCookie{Name: "cid", MaxAge: 3600}))
	r.GET("/who", func(c *gin.Context) {
		c.String(http.StatusOK, ClientID(c))
	})
	return r
}

func TestClientMiddleware_IssuesCookie(t *testing.T) {
	w := httptest.NewRecorder()
	newClientRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))

	id := w.Body.String()
	require.NoError(t, uuid.Validate(id))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "cid", cookies[0].Name)
	assert.Equal(t, id, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestClientMiddleware_KeepsValidCookie(t *testing.T) {
	existing := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.AddCookie(&http.Cookie{Name: "cid", Value: existing})

	w := httptest.NewRecorder()
	newClientRouter().ServeHTTP(w, req)
	assert.Equal(t, existing, w.Body.String())
}

func TestClientMiddleware_ReplacesForgedCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.AddCookie(&http.Cookie{Name: "cid", Value: "../../admin"})

	w := httptest.NewRecorder()
	newClientRouter().ServeHTTP(w, req)
	assert.NotEqual(t, "../../admin", w.Body.String())
	assert.NoError(t, uuid.Validate(w.Body.String()))
}

func TestPrometheusMiddleware_LabelsByRoute(t *testing.T) {
	r := gin.New()
	r.Use(PrometheusMiddleware())
	r.GET("/views/:name", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/views/:name", "200"))
	for _, name := range []string{"home", "events"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/views/"+name, nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/views/:name", "200"))
	assert.Equal(t, 2.0, after-before)
}

func TestStartSpan_NoopWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, ctx)
}

func TestStopProfiling_NotRunning(t *testing.T) {
	assert.NoError(t, StopProfiling())
	assert.NoError(t, StopProfiling())
}
