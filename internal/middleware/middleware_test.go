package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/config"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/session"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(rec.Body.String()); err != nil {
		t.Errorf("expected generated uuid, got %q", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = serve(r, req)
	if rec.Body.String() != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("expected propagated id, got %q", rec.Body.String())
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	if rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/patients/:code", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/patients/GH1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/patients/GH2", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/patients/:code", "200")); got != 2 {
		t.Errorf("expected 2 requests on the template label, got %v", got)
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(1, 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected burst of 2 then 429, got %v", codes)
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	if rec := serve(r, req); rec.Code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", rec.Code)
	}
}

func TestLimiterStore_SweepsIdleVisitors(t *testing.T) {
	s := newLimiterStore(1, 1)
	start := time.Now()
	s.get("a", start)
	s.get("b", start.Add(9*time.Minute))
	s.get("b", start.Add(11*time.Minute))

	if _, ok := s.visitors["a"]; ok {
		t.Error("expected idle visitor to be swept")
	}
	if _, ok := s.visitors["b"]; !ok {
		t.Error("expected active visitor to be kept")
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(config.CORSConfig{
		AllowedOrigins: []string{"http://app.test"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization"},
		MaxAge:         time.Hour,
	}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://app.test")
	rec := serve(r, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "http://app.test" {
		t.Errorf("unexpected preflight %d %v", rec.Code, rec.Header())
	}
	if rec.Header().Get("Access-Control-Max-Age") != "3600" {
		t.Errorf("unexpected max age %q", rec.Header().Get("Access-Control-Max-Age"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://evil.test")
	if rec := serve(r, req); rec.Code != http.StatusForbidden {
		t.Errorf("expected foreign preflight to be refused, got %d", rec.Code)
	}
}

func TestDeadline(t *testing.T) {
	r := gin.New()
	r.Use(Deadline(time.Second))
	r.GET("/", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); !ok {
			t.Error("expected request context to carry a deadline")
		}
		c.Status(http.StatusOK)
	})
	serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
}

type fakeResolver struct {
	sessions map[string]*session.Session
	err      error
}

func (f fakeResolver) ResolveSession(_ context.Context, token string) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[token]
	if !ok {
		return nil, auth.ErrTokenInvalid
	}
	return s, nil
}

func authRouter(resolver SessionResolver) *gin.Engine {
	r := gin.New()
	api := r.Group("/", Auth(resolver, zap.NewNop()))
	api.GET("/me", func(c *gin.Context) {
		s, _ := session.From(c)
		c.String(http.StatusOK, s.Email)
	})
	api.GET("/admin", RequireRole(domain.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuth(t *testing.T) {
	section := domain.SectionVitals
	resolver := fakeResolver{sessions: map[string]*session.Session{
		"nurse": {UserID: uuid.New(), Email: "nurse@clinic.test", Profile: &domain.Profile{Role: domain.RoleClinician, Section: &section}},
		"admin": {UserID: uuid.New(), Email: "admin@clinic.test", Profile: &domain.Profile{Role: domain.RoleAdmin}},
	}}
	r := authRouter(resolver)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/me", "", http.StatusUnauthorized},
		{"bad token", "/me", "garbage", http.StatusUnauthorized},
		{"clinician", "/me", "nurse", http.StatusOK},
		{"clinician on admin route", "/admin", "nurse", http.StatusForbidden},
		{"admin on admin route", "/admin", "admin", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if rec := serve(r, req); rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestAuth_ProfileLookupTimeout(t *testing.T) {
	r := authRouter(fakeResolver{err: errors.Join(domain.ErrTimeout)})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	if rec := serve(r, req); rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
}

func TestTracing(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var traceID string
	r := gin.New()
	r.Use(RequestID(), Tracing())
	r.GET("/patients/:code", func(c *gin.Context) {
		traceID = TraceID(c)
		c.Status(http.StatusInternalServerError)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/patients/gh1", nil))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Name() != "GET /patients/:code" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status for 500, got %v", spans[0].Status().Code)
	}
	if traceID == "" || traceID != spans[0].SpanContext().TraceID().String() {
		t.Errorf("handler saw trace id %q, span has %s", traceID, spans[0].SpanContext().TraceID())
	}
}
