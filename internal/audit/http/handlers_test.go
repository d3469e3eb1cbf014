package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine-commerce/vitrine/internal/audit"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func newAuditRouter(service *stubTimelineService) http.Handler {
	h := NewHandler(nil, service)
	h.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r
}

func TestTimelineDefaults(t *testing.T) {
	service := &stubTimelineService{result: audit.Result{Rows: []audit.TimelineRow{{Actor: "admin", Action: "grant.set"}}}}
	rr := httptest.NewRecorder()
	newAuditRouter(service).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?actor=admin", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"actor":"admin"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	f := service.lastFilters
	if f.From.Format(dateLayout) != "2024-03-08" || f.To.Format(dateLayout) != "2024-03-15" {
		t.Fatalf("unexpected default range %s..%s", f.From, f.To)
	}
	if f.Page != 1 || f.PageSize != defaultPageSize || f.Actor != "admin" {
		t.Fatalf("unexpected filters %+v", f)
	}
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	for _, query := range []string{
		"from=2024-03-10&to=2024-03-01",
		"from=2023-01-01&to=2024-03-01",
		"to=yesterday",
		"page=0",
		"page_size=x",
	} {
		rr := httptest.NewRecorder()
		newAuditRouter(&stubTimelineService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?"+query, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rr.Code)
		}
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{
		At: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), Actor: "admin", Action: "role.registered", Entity: "rbac_role", EntityID: "finance",
	}}}
	router := newAuditRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv?page_size=100", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "admin,role.registered,rbac_role,finance") {
		t.Fatalf("unexpected csv %q", rr.Body.String())
	}
	if service.lastFilters.PageSize != maxPageSize {
		t.Fatalf("expected clamped page size, got %d", service.lastFilters.PageSize)
	}
}

func TestExportRateLimited(t *testing.T) {
	router := newAuditRouter(&stubTimelineService{})
	var last int
	for i := 0; i <= rateLimit; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		router.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d exports, got %d", rateLimit, last)
	}
}
