package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/boxoffice/internal/audit/domain"
	"github.com/smallbiznis/boxoffice/internal/audit/repository"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/dbtest"
	obscontext "github.com/smallbiznis/boxoffice/internal/observability/context"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) domain.Service {
	t.Helper()
	return NewService(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Clock: clock.NewFakeClock(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestRecordCapturesActorAndMasksContactData(t *testing.T) {
	svc := newService(t)
	ctx := obscontext.WithActor(context.Background(), "operator", "op-7")
	ctx = obscontext.WithClientIP(ctx, "10.1.1.1")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	require.NoError(t, svc.Record(ctx, domain.Entry{
		Action:     domain.ActionOrderEmailUpdated,
		TargetType: "order",
		TargetID:   "BO-260701-ABC",
		Metadata: map[string]any{
			"previous_email": "maria@example.com",
			"reason":         "typo",
		},
	}))

	res, err := svc.List(context.Background(), domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)
	got := res.AuditLogs[0]
	assert.Equal(t, "operator", got.ActorType)
	assert.Equal(t, "op-7", got.ActorID)
	assert.Equal(t, "10.1.1.1", got.IPAddress)
	assert.Equal(t, "m****@example.com", got.Metadata["previous_email"])
	assert.Equal(t, "typo", got.Metadata["reason"])
	assert.Equal(t, "req-1", got.Metadata["request_id"])
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Record(context.Background(), domain.Entry{Action: domain.ActionTicketRedeemed}))
	assert.ErrorIs(t, svc.Record(context.Background(), domain.Entry{}), domain.ErrInvalidAction)

	res, err := svc.List(context.Background(), domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)
	assert.Equal(t, "system", res.AuditLogs[0].ActorType)
	assert.Equal(t, "unknown", res.AuditLogs[0].TargetType)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, target := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Record(ctx, domain.Entry{Action: domain.ActionOrderResent, TargetType: "order", TargetID: target}))
	}
	require.NoError(t, svc.Record(ctx, domain.Entry{Action: domain.ActionPromoCreated, TargetID: "WOLF10"}))

	first, err := svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}, Action: domain.ActionOrderResent})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.Equal(t, "c", first.AuditLogs[0].TargetID)
	assert.True(t, first.PageInfo.HasMore)

	next, err := svc.List(ctx, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken},
		Action:     domain.ActionOrderResent,
	})
	require.NoError(t, err)
	require.Len(t, next.AuditLogs, 1)
	assert.Equal(t, "a", next.AuditLogs[0].TargetID)
	assert.False(t, next.PageInfo.HasMore)
}

func TestListMatchesActionFamily(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, domain.Entry{Action: domain.ActionOrderRefunded, TargetType: "order", TargetID: "1"}))
	require.NoError(t, svc.Record(ctx, domain.Entry{Action: domain.ActionOrderCancelled, TargetType: "order", TargetID: "2"}))
	require.NoError(t, svc.Record(ctx, domain.Entry{Action: domain.ActionPromoCreated, TargetID: "WOLF10"}))

	res, err := svc.List(ctx, domain.ListRequest{Action: "order.*"})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 2)
	for _, entry := range res.AuditLogs {
		assert.Contains(t, entry.Action, "order.")
	}
}
