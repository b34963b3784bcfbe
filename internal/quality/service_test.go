package quality

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/shared"
)

type memoryRepo struct {
	nextID int64
	ncrs   map[int64]NonConformance
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, ncrs: map[int64]NonConformance{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) Get(_ context.Context, id int64) (NonConformance, error) {
	n, ok := m.ncrs[id]
	if !ok {
		return NonConformance{}, ErrNotFound
	}
	return n, nil
}

func (m *memoryRepo) List(_ context.Context, f ListFilter) ([]NonConformance, int, error) {
	out := []NonConformance{}
	for id := int64(1); id < m.nextID; id++ {
		n, ok := m.ncrs[id]
		if !ok {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		if f.Source != "" && n.Source != f.Source {
			continue
		}
		if f.CustomerID > 0 && (n.CustomerID == nil || *n.CustomerID != f.CustomerID) {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GenerateNumber(_ context.Context, now time.Time) (string, error) {
	return fmt.Sprintf("NCR-%s-%04d", now.Format("060102"), len(t.repo.ncrs)+1), nil
}

func (t *memoryTx) Insert(_ context.Context, n NonConformance) (NonConformance, error) {
	n.ID = t.repo.nextID
	t.repo.nextID++
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	t.repo.ncrs[n.ID] = n
	return n, nil
}

func (t *memoryTx) Update(_ context.Context, n NonConformance) error {
	stored, ok := t.repo.ncrs[n.ID]
	if !ok {
		return ErrNotFound
	}
	stored.QuantityAffected = n.QuantityAffected
	stored.Description = n.Description
	stored.RootCause = n.RootCause
	stored.CorrectiveAction = n.CorrectiveAction
	stored.Disposition = n.Disposition
	stored.AssignedTo = n.AssignedTo
	stored.UpdatedAt = time.Now()
	t.repo.ncrs[n.ID] = stored
	return nil
}

func (t *memoryTx) SetStatus(_ context.Context, id int64, from, to string, resolvedAt *time.Time) (bool, error) {
	n, ok := t.repo.ncrs[id]
	if !ok || n.Status != from {
		return false, nil
	}
	n.Status = to
	n.ResolvedAt = resolvedAt
	n.UpdatedAt = time.Now()
	t.repo.ncrs[id] = n
	return true, nil
}

func newTestService() *Service {
	return NewService(newMemoryRepo(), nil)
}

func itemRef(id int64) *int64 { return &id }

func TestCreateNCR(t *testing.T) {
	svc := newTestService()
	n, err := svc.Create(context.Background(), CreateRequest{
		Source:           SourceCustomer,
		ItemID:           itemRef(12),
		CustomerID:       itemRef(3),
		QuantityAffected: 150,
		Description:      "flash on clip housing batch",
		Disposition:      DispositionRework,
		ActorID:          7,
	})
	require.NoError(t, err)
	require.Regexp(t, `^NCR-\d{6}-0001$`, n.NCRNumber)
	require.Equal(t, StatusOpen, n.Status)
	require.Equal(t, int64(7), n.RaisedBy)
	require.Nil(t, n.ResolvedAt)
}

func TestCreateNCRValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Source: SourceInternal})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateRequest{Source: "audit", Description: "x"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateRequest{
		Source: SourceInternal, Description: "x", Disposition: "melt",
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateRequest{
		Source: SourceInternal, Description: "x", QuantityAffected: -1,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateNCRPartial(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	n, err := svc.Create(ctx, CreateRequest{
		Source: SourceInternal, Description: "short shots on press 2", ActorID: 1,
	})
	require.NoError(t, err)

	rootCause := "barrel temperature drift"
	action := "recalibrated zone 3 thermocouple"
	updated, err := svc.Update(ctx, n.ID, UpdateRequest{
		RootCause:        &rootCause,
		CorrectiveAction: &action,
		ActorID:          1,
	})
	require.NoError(t, err)
	require.Equal(t, rootCause, updated.RootCause)
	require.Equal(t, action, updated.CorrectiveAction)
	// Untouched fields keep their values.
	require.Equal(t, "short shots on press 2", updated.Description)
	require.Equal(t, SourceInternal, updated.Source)
}

func TestStatusLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	n, err := svc.Create(ctx, CreateRequest{
		Source: SourceInternal, Description: "warped brackets", ActorID: 1,
	})
	require.NoError(t, err)

	n, err = svc.UpdateStatus(ctx, n.ID, StatusInvestigating, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInvestigating, n.Status)
	require.Nil(t, n.ResolvedAt)

	n, err = svc.UpdateStatus(ctx, n.ID, StatusResolved, 1)
	require.NoError(t, err)
	require.Equal(t, StatusResolved, n.Status)
	require.NotNil(t, n.ResolvedAt)

	// Reopening clears the resolution stamp.
	n, err = svc.UpdateStatus(ctx, n.ID, StatusOpen, 1)
	require.NoError(t, err)
	require.Nil(t, n.ResolvedAt)

	n, err = svc.UpdateStatus(ctx, n.ID, StatusClosed, 1)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, n.Status)

	_, err = svc.UpdateStatus(ctx, n.ID, StatusOpen, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestClosedNCRImmutable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	n, err := svc.Create(ctx, CreateRequest{
		Source: SourceSupplier, Description: "regrind contamination", ActorID: 1,
	})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, n.ID, StatusClosed, 1)
	require.NoError(t, err)

	desc := "edited after close"
	_, err = svc.Update(ctx, n.ID, UpdateRequest{Description: &desc, ActorID: 1})
	require.ErrorIs(t, err, ErrClosed)
}

func TestListFilters(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Source: SourceInternal, Description: "a", ActorID: 1})
	require.NoError(t, err)
	n2, err := svc.Create(ctx, CreateRequest{Source: SourceCustomer, CustomerID: itemRef(9), Description: "b", ActorID: 1})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, n2.ID, StatusResolved, 1)
	require.NoError(t, err)

	both, total, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, both, 2)
	require.Equal(t, 2, total)

	open, _, err := svc.List(ctx, ListFilter{Status: StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, SourceInternal, open[0].Source)

	byCustomer, _, err := svc.List(ctx, ListFilter{CustomerID: 9})
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)

	_, _, err = svc.List(ctx, ListFilter{Status: "pending"})
	require.ErrorIs(t, err, ErrValidation)
}

type approvalSpy struct {
	logs []shared.ApprovalLog
}

func (a *approvalSpy) Record(_ context.Context, log shared.ApprovalLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestApprovalTrail(t *testing.T) {
	svc := newTestService()
	spy := &approvalSpy{}
	svc.SetApprovals(spy)
	ctx := context.Background()

	n, err := svc.Create(ctx, CreateRequest{
		Source:      SourceCustomer,
		Description: "splay on lid batch",
		Disposition: DispositionRework,
		ActorID:     4,
	})
	require.NoError(t, err)
	require.Len(t, spy.logs, 1)
	require.Equal(t, "quality.ncr", spy.logs[0].Module)
	require.Equal(t, n.ID, spy.logs[0].RefID)
	require.Equal(t, shared.ApprovalSubmit, spy.logs[0].Action)
	require.Equal(t, n.NCRNumber, spy.logs[0].Note)

	// Intermediate status changes are not sign-offs.
	_, err = svc.UpdateStatus(ctx, n.ID, StatusInvestigating, 4)
	require.NoError(t, err)
	require.Len(t, spy.logs, 1)

	_, err = svc.UpdateStatus(ctx, n.ID, StatusResolved, 9)
	require.NoError(t, err)
	require.Len(t, spy.logs, 2)
	require.Equal(t, shared.ApprovalApprove, spy.logs[1].Action)
	require.Equal(t, int64(9), spy.logs[1].ActorID)
	require.Equal(t, DispositionRework, spy.logs[1].Note)
}

func TestApprovalSkippedWithoutActor(t *testing.T) {
	svc := newTestService()
	spy := &approvalSpy{}
	svc.SetApprovals(spy)

	_, err := svc.Create(context.Background(), CreateRequest{
		Source:      SourceInternal,
		Description: "startup scrap over threshold",
	})
	require.NoError(t, err)
	require.Empty(t, spy.logs)
}
