package cbes

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cbes-platform/cbes-api/internal/lifecycle"
	"github.com/cbes-platform/cbes-api/internal/shared"
)

type memoryRepo struct {
	nextID  int64
	records map[int64]CBE
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, records: make(map[int64]CBE)}
}

func (m *memoryRepo) ListActive(ctx context.Context) ([]CBE, error) {
	return m.listWhere(func(c CBE) bool { return !c.Deleted }), nil
}

func (m *memoryRepo) ListBin(ctx context.Context) ([]CBE, error) {
	return m.listWhere(func(c CBE) bool { return c.Deleted && !c.Purged }), nil
}

func (m *memoryRepo) listWhere(keep func(CBE) bool) []CBE {
	var out []CBE
	for _, c := range m.records {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (CBE, error) {
	c, ok := m.records[id]
	if !ok {
		return CBE{}, ErrCBENotFound
	}
	return c, nil
}

func (m *memoryRepo) Insert(ctx context.Context, in CreateInput, now time.Time) (CBE, error) {
	c := CBE{
		ID:        m.nextID,
		ThaiName:  in.ThaiName,
		EngName:   in.EngName,
		ShortName: in.ShortName,
		Detail:    in.Detail,
		CreatedBy: in.ActorID,
		CreatedAt: now,
		UpdatedBy: in.ActorID,
		UpdatedAt: now,
	}
	m.nextID++
	m.records[c.ID] = c
	return c, nil
}

func (m *memoryRepo) Update(ctx context.Context, in UpdateInput, now, expectedUpdatedAt time.Time) (CBE, error) {
	c, ok := m.records[in.ID]
	if !ok || c.Deleted || !c.UpdatedAt.Equal(expectedUpdatedAt) {
		return CBE{}, ErrStaleCBE
	}
	if in.ThaiName != nil {
		c.ThaiName = *in.ThaiName
	}
	if in.EngName != nil {
		c.EngName = *in.EngName
	}
	if in.ShortName != nil {
		c.ShortName = *in.ShortName
	}
	if in.Detail != nil {
		c.Detail = *in.Detail
	}
	c.UpdatedBy = in.ActorID
	c.UpdatedAt = now
	m.records[in.ID] = c
	return c, nil
}

func (m *memoryRepo) Transition(ctx context.Context, id int64, from, to lifecycle.Flags, actorID int64, now time.Time) (CBE, error) {
	c, ok := m.records[id]
	if !ok || c.Deleted != from.Deleted || c.Purged != from.Purged {
		return CBE{}, ErrStaleCBE
	}
	c.Deleted = to.Deleted
	c.Purged = to.Purged
	c.UpdatedBy = actorID
	c.UpdatedAt = now
	m.records[id] = c
	return c, nil
}

type memoryAudit struct {
	entries []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func newTestService() (*Service, *memoryRepo, *memoryAudit) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	n := 0
	svc := NewService(repo, audit, slog.New(slog.DiscardHandler)).WithNow(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	})
	return svc, repo, audit
}

func TestCreateAndGet(t *testing.T) {
	svc, _, audit := newTestService()
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{
		ThaiName:  "วิสาหกิจชุมชนบ้านดอน",
		EngName:   "Ban Don Community Enterprise",
		ShortName: "BDCE",
		ActorID:   7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), c.CreatedBy)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "BDCE", got.ShortName)
	require.Len(t, audit.entries, 1)
	require.Equal(t, "cbe.create", audit.entries[0].Action)
}

func TestCreateRequiresThaiNameAndActor(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ThaiName: " ", ActorID: 7})
	require.Error(t, err)

	_, err = svc.Create(ctx, CreateInput{ThaiName: "ชื่อ"})
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestUpdateKeepsUnspecifiedFields(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{ThaiName: "ชื่อไทย", EngName: "Old English", ActorID: 7})
	require.NoError(t, err)

	eng := "New English"
	updated, err := svc.Update(ctx, UpdateInput{ID: c.ID, EngName: &eng, ActorID: 8})
	require.NoError(t, err)
	require.Equal(t, "ชื่อไทย", updated.ThaiName)
	require.Equal(t, "New English", updated.EngName)
	require.Equal(t, int64(8), updated.UpdatedBy)
}

func TestUpdateStaleReadConflicts(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{ThaiName: "ชื่อ", ActorID: 7})
	require.NoError(t, err)

	// Another writer bumps the stamp between our read and write.
	stale := repo.records[c.ID]
	stale.UpdatedAt = stale.UpdatedAt.Add(time.Minute)
	repo.records[c.ID] = stale

	name := "เปลี่ยน"
	_, err = svc.Update(ctx, UpdateInput{ID: c.ID, ThaiName: &name, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestLifecycleMirrorsRolePattern(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{ThaiName: "ชั่วคราว", ActorID: 7})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Purge(ctx, c.ID, 7), shared.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, c.ID, 7))

	_, err = svc.Get(ctx, c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	bin, err := svc.ListBin(ctx)
	require.NoError(t, err)
	require.Len(t, bin, 1)

	require.NoError(t, svc.Restore(ctx, c.ID, 7))
	_, err = svc.Get(ctx, c.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, c.ID, 7))
	require.NoError(t, svc.Purge(ctx, c.ID, 7))

	active, _ := svc.ListActive(ctx)
	require.Empty(t, active)
	bin, _ = svc.ListBin(ctx)
	require.Empty(t, bin)
	require.ErrorIs(t, svc.Restore(ctx, c.ID, 7), shared.ErrNotFound)

	// A deleted record cannot be edited.
	name := "ใหม่"
	_, err = svc.Update(ctx, UpdateInput{ID: c.ID, ThaiName: &name, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
