package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/boxoffice/internal/dbtest"
	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessCallbackIssuesTicketsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 2), f.line(f.vip, 1))
	paid := f.pay(t, o)

	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, domain.PaymentOK, paid.PaymentStatus)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.ConfirmationSentAt)
	require.Len(t, paid.Items, 3)
	codes := map[string]bool{}
	for _, item := range paid.Items {
		assert.Equal(t, domain.ItemValid, item.Status)
		codes[item.TicketCode] = true
	}
	assert.Len(t, codes, 3)
	require.Len(t, f.notifier.confirmations, 1)
	assert.Len(t, f.notifier.confirmations[0].Items, 3)

	outcome, err := f.svc.HandleGatewayCallback(ctx, domain.CallbackRequest{
		TransactionID:  "tx-" + o.OrderNumber,
		OrderReference: o.OrderNumber,
		Result:         domain.CallbackOK,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)
	assert.Equal(t, int64(3), dbtest.Count(t, f.db, "order_items", "order_id = ?", o.ID))
	assert.Len(t, f.notifier.confirmations, 1)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "gateway_callbacks", ""))
	assert.Equal(t, []events.Type{events.OrderCreated, events.OrderPaid}, f.events.types())
}

func TestFailedCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 1))

	cb := domain.CallbackRequest{
		TransactionID:  "tx-1",
		OrderReference: o.OrderNumber,
		Result:         domain.CallbackFailed,
		FailureReason:  "insufficient funds",
	}
	outcome, err := f.svc.HandleGatewayCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, outcome)

	got, err := f.svc.Get(ctx, o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.PaymentFailed, got.PaymentStatus)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "insufficient funds", *got.FailureReason)

	outcome, err = f.svc.HandleGatewayCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)

	outcome, err = f.svc.HandleGatewayCallback(ctx, domain.CallbackRequest{
		TransactionID:  "tx-2",
		OrderReference: o.OrderNumber,
		Result:         domain.CallbackOK,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.OutcomeAnomalous, outcome)

	got, err = f.svc.Get(ctx, o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Empty(t, got.Items)
}

func TestCallbackRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 1))

	_, err := f.svc.HandleGatewayCallback(ctx, domain.CallbackRequest{TransactionID: "tx", OrderReference: "BO-000000-NOPE", Result: domain.CallbackOK})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.HandleGatewayCallback(ctx, domain.CallbackRequest{TransactionID: "tx", OrderReference: o.OrderNumber, Result: domain.CallbackOK, Amount: ptr(int64(1))})
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)

	_, err = f.svc.HandleGatewayCallback(ctx, domain.CallbackRequest{TransactionID: "tx", OrderReference: o.OrderNumber, Result: "maybe"})
	assert.ErrorIs(t, err, domain.ErrInvalidCallback)

	got, err := f.svc.Get(ctx, o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestIssuanceExhaustedRollsBack(t *testing.T) {
	f := newFixture(t, withGenerator(constGenerator{code: "AAAA-BBBB-CCCC"}))
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 2))

	_, err := f.svc.HandleGatewayCallback(ctx, domain.CallbackRequest{TransactionID: "tx", OrderReference: o.OrderNumber, Result: domain.CallbackOK})
	assert.ErrorIs(t, err, domain.ErrTicketIssuanceFailed)

	got, err := f.svc.Get(ctx, o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.PaidAt)
	assert.Empty(t, got.Items)
	require.NotNil(t, got.AttentionReason)
	assert.Empty(t, f.notifier.confirmations)
}

func TestSweepLeavesAttentionOrdersPending(t *testing.T) {
	f := newFixture(t, withGenerator(constGenerator{code: "AAAA-BBBB-CCCC"}))
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 2))
	id := o.ID.String()

	cb := domain.CallbackRequest{TransactionID: "tx-charged", OrderReference: o.OrderNumber, Result: domain.CallbackOK}
	_, err := f.svc.HandleGatewayCallback(ctx, cb)
	require.ErrorIs(t, err, domain.ErrTicketIssuanceFailed)

	for i := 0; i < 4; i++ {
		f.clock.Advance(72 * time.Hour)
		sent, err := f.svc.SendReminder(ctx, id)
		require.NoError(t, err)
		assert.False(t, sent)
		expired, err := f.svc.Expire(ctx, id)
		require.NoError(t, err)
		assert.False(t, expired)
	}
	assert.Empty(t, f.notifier.reminders)

	due, err := f.repo.ListPendingForSweep(ctx, f.db, f.clock.Now(), 0, 50)
	require.NoError(t, err)
	for _, pending := range due {
		assert.NotEqual(t, o.ID, pending.ID)
	}

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	require.NotNil(t, got.AttentionReason)

	// the gateway redelivering the charge still reaches issuance
	_, err = f.svc.HandleGatewayCallback(ctx, cb)
	assert.ErrorIs(t, err, domain.ErrTicketIssuanceFailed)
	assert.NotErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestReminderSendIsBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 1))
	f.svc.reminderTimeout = 50 * time.Millisecond
	f.notifier.stallReminders = true

	f.clock.Advance(2 * time.Hour)
	started := time.Now()
	sent, err := f.svc.SendReminder(ctx, o.ID.String())
	assert.ErrorIs(t, err, domain.ErrEmailDelivery)
	assert.False(t, sent)
	assert.Less(t, time.Since(started), 2*time.Second)

	got, err := f.svc.Get(ctx, o.ID.String())
	require.NoError(t, err)
	assert.Zero(t, got.ReminderCount)

	f.notifier.stallReminders = false
	sent, err = f.svc.SendReminder(ctx, o.ID.String())
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.pay(t, f.checkout(t, "ion@example.com", "", f.line(f.general, 2)))

	_, err := f.svc.Refund(ctx, domain.RefundRequest{OrderID: paid.ID.String(), Operator: "op-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)
	_, err = f.svc.Refund(ctx, domain.RefundRequest{OrderID: paid.ID.String(), Reason: "duplicate"})
	assert.ErrorIs(t, err, domain.ErrInvalidOperator)

	refunded, err := f.svc.Refund(ctx, domain.RefundRequest{
		OrderID:         paid.ID.String(),
		Reason:          "duplicate",
		Operator:        "op-1",
		RefundReference: "rf-77",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.Equal(t, domain.PaymentReversed, refunded.PaymentStatus)
	require.NotNil(t, refunded.RefundReason)
	assert.Equal(t, "duplicate", *refunded.RefundReason)
	assert.Equal(t, "op-1", *refunded.RefundedBy)
	assert.Equal(t, "rf-77", *refunded.RefundReference)
	require.NotNil(t, refunded.PaidAt)
	for _, item := range refunded.Items {
		assert.Equal(t, domain.ItemRefunded, item.Status)
	}
	assert.Equal(t, paid.Version+1, refunded.Version)

	_, err = f.svc.Refund(ctx, domain.RefundRequest{OrderID: paid.ID.String(), Reason: "duplicate", Operator: "op-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	pending := f.checkout(t, "ana@example.com", "", f.line(f.general, 1))
	_, err = f.svc.Refund(ctx, domain.RefundRequest{OrderID: pending.ID.String(), Reason: "x", Operator: "op-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCustomerCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 1))

	_, err := f.svc.Cancel(ctx, domain.CancelRequest{OrderNumber: o.OrderNumber, Email: "other@example.com"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, err := f.svc.Cancel(ctx, domain.CancelRequest{OrderNumber: o.OrderNumber, Email: "ion@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.CancelByOperator(ctx, o.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	paid := f.pay(t, f.checkout(t, "ana@example.com", "", f.line(f.general, 1)))
	_, err = f.svc.CancelByOperator(ctx, paid.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestReminderAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 1))
	id := o.ID.String()

	f.clock.Advance(30 * time.Minute)
	sent, err := f.svc.SendReminder(ctx, id)
	require.NoError(t, err)
	assert.False(t, sent)

	f.clock.Advance(30 * time.Minute)
	f.notifier.reminderErr = errSMTP
	_, err = f.svc.SendReminder(ctx, id)
	assert.ErrorIs(t, err, domain.ErrEmailDelivery)
	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ReminderCount)

	f.notifier.reminderErr = nil
	sent, err = f.svc.SendReminder(ctx, id)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = f.svc.SendReminder(ctx, id)
	require.NoError(t, err)
	assert.False(t, sent, "second reminder is not due yet")

	f.clock.Advance(24 * time.Hour)
	sent, err = f.svc.SendReminder(ctx, id)
	require.NoError(t, err)
	assert.True(t, sent)

	expired, err := f.svc.Expire(ctx, id)
	require.NoError(t, err)
	assert.False(t, expired)

	f.clock.Advance(24 * time.Hour)
	sent, err = f.svc.SendReminder(ctx, id)
	require.NoError(t, err)
	assert.False(t, sent, "never more than two reminders")

	expired, err = f.svc.Expire(ctx, id)
	require.NoError(t, err)
	assert.True(t, expired)

	got, err = f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	assert.Equal(t, 2, got.ReminderCount)
	assert.NotNil(t, got.ExpiredAt)
	assert.Len(t, f.notifier.reminders, 2)
}

func TestPaidOrderIsNeverExpired(t *testing.T) {
	f := newFixture(t)
	paid := f.pay(t, f.checkout(t, "ion@example.com", "", f.line(f.general, 1)))

	f.clock.Advance(96 * time.Hour)
	sent, err := f.svc.SendReminder(context.Background(), paid.ID.String())
	require.NoError(t, err)
	assert.False(t, sent)
	expired, err := f.svc.Expire(context.Background(), paid.ID.String())
	require.NoError(t, err)
	assert.False(t, expired)
}
