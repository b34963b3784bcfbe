package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/audit"
	"github.com/mouldworks/mouldworks/internal/shared"
	"github.com/mouldworks/mouldworks/internal/view"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(_ context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

type stubExporter struct{}

func (stubExporter) WriteCSV(rows []audit.TimelineRow) ([]byte, error) {
	return []byte("occurred_at,actor\n"), nil
}

func (stubExporter) RenderPDF(_ context.Context, vm audit.ViewModel) ([]byte, error) {
	return []byte("%PDF-1.4 stub"), nil
}

type stubAuditRBAC struct {
	perms []string
}

func (s stubAuditRBAC) EffectivePermissions(_ context.Context, _ int64) ([]string, error) {
	return s.perms, nil
}

func newAuditHandler(t *testing.T, service *stubTimelineService, perms []string) *Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := NewHandler(nil, service, templates, stubExporter{}, stubAuditRBAC{perms: perms})
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	return handler
}

func requestAs(t *testing.T, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess := &shared.Session{}
	sess.SetUser("7")
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestTimelineRequiresPermission(t *testing.T) {
	handler := newAuditHandler(t, &stubTimelineService{}, nil)

	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, requestAs(t, "/audit"))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestTimelineRendersRows(t *testing.T) {
	service := &stubTimelineService{result: audit.Result{
		Rows: []audit.TimelineRow{{
			At:       time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
			Actor:    "office@mouldworks.co.uk",
			Action:   "inventory.adjust",
			Entity:   "item",
			EntityID: "12",
		}},
		Paging: audit.PagingInfo{Page: 1, PageSize: 20},
	}}
	handler := newAuditHandler(t, service, []string{shared.PermAuditView})

	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, requestAs(t, "/audit?from=2026-03-01&to=2026-03-15"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "office@mouldworks.co.uk")
	require.Equal(t, "2026-03-01", service.lastFilters.From.Format("2006-01-02"))
	require.Equal(t, "2026-03-15", service.lastFilters.To.Format("2006-01-02"))
}

func TestTimelineRejectsInvertedRange(t *testing.T) {
	handler := newAuditHandler(t, &stubTimelineService{}, []string{shared.PermAuditView})

	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, requestAs(t, "/audit?from=2026-03-20&to=2026-03-01"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "office@mouldworks.co.uk"}}}
	handler := newAuditHandler(t, service, []string{shared.PermAuditView})

	rr := httptest.NewRecorder()
	handler.handleExport(rr, requestAs(t, "/audit/export.csv?from=2026-03-01&to=2026-03-05"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rr.Header().Get("Content-Disposition"), "audit-timeline.csv")
}

func TestExportPDF(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "office@mouldworks.co.uk"}}}
	handler := newAuditHandler(t, service, []string{shared.PermAuditView})

	rr := httptest.NewRecorder()
	handler.handlePDF(rr, requestAs(t, "/audit/pdf?from=2026-03-01&to=2026-03-05"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
}
