package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/shared"
)

type recordingSink struct {
	logs []shared.AuditLog
	err  error
}

func (s *recordingSink) Record(_ context.Context, log shared.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

func TestAuditedWriteDropsCachedReports(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCache(client, 10*time.Minute)
	repo := &fakeRepo{dashboard: DashboardSummary{ItemCount: 42}}
	svc := NewService(repo, cache)
	sink := &recordingSink{}
	audited := NewInvalidatingAuditLog(sink, cache)

	ctx := context.Background()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	_, err := svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, repo.dashboardCalls)

	// A stock receipt logs through the decorated sink and the next
	// dashboard read misses the stale key.
	require.NoError(t, audited.Record(ctx, shared.AuditLog{
		ActorID: 3, Action: "inventory.receive", Entity: "item", EntityID: "12",
	}))
	require.Len(t, sink.logs, 1)

	_, err = svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 2, repo.dashboardCalls)
}

func TestInvalidatingAuditLogKeepsSinkError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sinkErr := context.DeadlineExceeded
	audited := NewInvalidatingAuditLog(&recordingSink{err: sinkErr}, NewCache(client, time.Minute))
	err := audited.Record(context.Background(), shared.AuditLog{Action: "sales.order_create"})
	require.ErrorIs(t, err, sinkErr)
}
