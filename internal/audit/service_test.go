package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/report"
)

func testCompany() report.Company {
	return report.Company{
		Name:    "Mouldworks Ltd",
		Address: "Unit 7, Riverside Industrial Estate, Stoke-on-Trent ST4 7QD",
		Phone:   "01782 555000",
		Email:   "office@mouldworks.co.uk",
		VATNo:   "GB 123 4567 89",
	}
}

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastLimit  int
	lastOffset int
	lastFilter TimelineFilters
}

func (s *stubTimelineRepo) TimelineWindow(_ context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	s.lastFilter = filters
	s.lastLimit = limit
	s.lastOffset = offset
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *stubTimelineRepo) TimelineAll(_ context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error) {
	s.lastFilter = filters
	s.lastLimit = limit
	return s.rows, nil
}

func trailRow(ts, actor, action, entity, entityID string) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{At: at, Actor: actor, Action: action, Entity: entity, EntityID: entityID}
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		trailRow("2026-03-10T10:00:00Z", "office@mouldworks.co.uk", "inventory.adjust", "item", "12"),
		trailRow("2026-03-09T09:00:00Z", "office@mouldworks.co.uk", "sales.order.create", "sales_order", "4"),
		trailRow("2026-03-08T08:00:00Z", "admin@mouldworks.co.uk", "users.create", "user", "9"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, 3, repo.lastLimit, "fetches one extra row to detect the next page")
	require.Zero(t, repo.lastOffset)
}

func TestTimelineSecondPageOffset(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		trailRow("2026-03-08T08:00:00Z", "admin@mouldworks.co.uk", "users.create", "user", "9"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
	require.Equal(t, 2, repo.lastOffset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 51, repo.lastLimit)

	_, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Equal(t, 21, repo.lastLimit, "defaults to 20 per page")
}

func TestExportCapsRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		trailRow("2026-03-10T10:00:00Z", "office@mouldworks.co.uk", "inventory.adjust", "item", "12"),
	}}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), TimelineFilters{Actor: "office"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, exportRowCap, repo.lastLimit)
	require.Equal(t, "office", repo.lastFilter.Actor)
}

func TestQueryArgsUpperBoundExclusive(t *testing.T) {
	from, until, actor, entity, action := queryArgs(TimelineFilters{
		From:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Actor:  "  office  ",
		Entity: "item",
		Action: "",
	})
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), until, "includes the whole of the To day")
	require.Equal(t, "office", actor)
	require.Equal(t, "item", entity)
	require.Empty(t, action)
}

func TestWriteCSVEncodesRows(t *testing.T) {
	exporter := NewExporter(testCompany())
	out, err := exporter.WriteCSV([]TimelineRow{
		trailRow("2026-03-10T10:00:00Z", "office@mouldworks.co.uk", "inventory.adjust", "item", "12"),
	})
	require.NoError(t, err)
	csv := string(out)
	require.Contains(t, csv, "occurred_at,actor,action,entity,entity_id,meta")
	require.Contains(t, csv, "2026-03-10T10:00:00Z,office@mouldworks.co.uk,inventory.adjust,item,12,")
}

func TestRenderPDFProducesDocument(t *testing.T) {
	exporter := NewExporter(testCompany())
	out, err := exporter.RenderPDF(context.Background(), ViewModel{
		Filters: FiltersViewModel{
			From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		Rows: []TimelineRow{
			trailRow("2026-03-10T10:00:00Z", "office@mouldworks.co.uk", "inventory.adjust", "item", "12"),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.Equal(t, "%PDF", string(out[:4]))
}
