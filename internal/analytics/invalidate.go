package analytics

import (
	"context"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// AuditSink matches the Record method the domain services log through.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatingAuditLog forwards audit entries and bumps the report
// cache version. Every audited stock, order or production write drops
// cached analytics immediately instead of waiting out the TTL.
type InvalidatingAuditLog struct {
	next  AuditSink
	cache *Cache
}

// NewInvalidatingAuditLog decorates an audit sink with cache invalidation.
func NewInvalidatingAuditLog(next AuditSink, cache *Cache) *InvalidatingAuditLog {
	return &InvalidatingAuditLog{next: next, cache: cache}
}

// Record writes the audit entry, then invalidates cached reports. A
// failed bump never fails the write; the TTL still bounds staleness.
func (l *InvalidatingAuditLog) Record(ctx context.Context, log shared.AuditLog) error {
	err := l.next.Record(ctx, log)
	_ = l.cache.Bump(ctx)
	return err
}
