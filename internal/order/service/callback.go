package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/gateway"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/internal/ticketcode"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HandleGatewayCallback applies a payment result. Redelivered callbacks are
// answered with OutcomeDuplicate and change nothing.
func (s *Service) HandleGatewayCallback(ctx context.Context, req domain.CallbackRequest) (domain.CallbackOutcome, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.OrderReference = domain.NormalizeOrderNumber(req.OrderReference)
	if req.TransactionID == "" || req.OrderReference == "" {
		return domain.OutcomeRejected, domain.ErrInvalidCallback
	}
	if req.Result != domain.CallbackOK && req.Result != domain.CallbackFailed {
		return domain.OutcomeRejected, domain.ErrInvalidCallback
	}
	if req.Provider == "" {
		req.Provider = gateway.Provider
	}

	now := s.clock.Now()
	payload := req.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	journal := domain.GatewayCallback{
		ID:             s.genID.Generate(),
		Provider:       req.Provider,
		TransactionID:  req.TransactionID,
		Result:         string(req.Result),
		OrderReference: req.OrderReference,
		Payload:        datatypes.JSON(payload),
		ReceivedAt:     now,
	}
	journaled, err := s.repo.InsertCallback(ctx, s.db, &journal)
	if err != nil {
		return "", err
	}

	outcome, order, err := s.applyCallback(ctx, req)
	s.metrics.RecordGatewayCallback(ctx, string(req.Result), string(outcome))
	if journaled {
		if markErr := s.repo.MarkCallbackProcessed(ctx, s.db, journal.ID, string(outcome), s.clock.Now()); markErr != nil {
			s.log.Warn("mark callback processed failed", zap.Error(markErr))
		}
	}

	log := s.log.With(
		zap.String("order_reference", req.OrderReference),
		zap.String("transaction_id", req.TransactionID),
		zap.String("result", string(req.Result)),
		zap.String("outcome", string(outcome)),
	)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn("anomalous gateway callback ignored")
		} else {
			log.Error("gateway callback failed", zap.Error(err))
		}
		return outcome, err
	}
	log.Info("gateway callback applied")

	switch outcome {
	case domain.OutcomePaid:
		s.afterPaid(ctx, order)
	case domain.OutcomeFailed:
		s.publish(ctx, events.OrderFailed, order)
	}
	return outcome, nil
}

func (s *Service) applyCallback(ctx context.Context, req domain.CallbackRequest) (domain.CallbackOutcome, domain.Order, error) {
	found, err := s.repo.FindByNumber(ctx, s.db, req.OrderReference)
	if err != nil {
		return domain.OutcomeRejected, domain.Order{}, err
	}
	if found == nil {
		return domain.OutcomeRejected, domain.Order{}, domain.ErrNotFound
	}
	if req.Amount != nil && *req.Amount != found.FinalAmount {
		return domain.OutcomeRejected, *found, domain.ErrAmountMismatch
	}

	var (
		outcome domain.CallbackOutcome
		order   domain.Order
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lock(ctx, tx, found.ID)
		if err != nil {
			return err
		}

		switch {
		case req.Result == domain.CallbackOK && o.Status == domain.StatusPending:
			if err := s.markPaid(ctx, tx, o, req.TransactionID); err != nil {
				return err
			}
			outcome = domain.OutcomePaid
		case req.Result == domain.CallbackOK && o.Status == domain.StatusPaid:
			outcome = domain.OutcomeDuplicate
		case req.Result == domain.CallbackFailed && o.Status == domain.StatusPending:
			reason := strings.TrimSpace(req.FailureReason)
			if reason == "" {
				reason = "declined"
			}
			txID := req.TransactionID
			err := s.transition(ctx, tx, o, domain.StatusFailed, func(o *domain.Order) {
				o.PaymentStatus = domain.PaymentFailed
				o.FailureReason = &reason
				o.GatewayTransactionID = &txID
			})
			if err != nil {
				return err
			}
			outcome = domain.OutcomeFailed
		case req.Result == domain.CallbackFailed && o.Status == domain.StatusFailed:
			outcome = domain.OutcomeDuplicate
		default:
			outcome = domain.OutcomeAnomalous
			return domain.ErrInvalidTransition
		}
		order = *o
		return nil
	})
	if errors.Is(err, ticketcode.ErrIssuanceExhausted) {
		s.flagAttention(ctx, found, "ticket code issuance exhausted")
		return domain.OutcomeRejected, *found, domain.ErrTicketIssuanceFailed
	}
	if err != nil {
		if outcome == "" {
			outcome = domain.OutcomeRejected
		}
		return outcome, *found, err
	}
	return outcome, order, nil
}

// markPaid moves o to paid and issues its ticket codes in tx.
func (s *Service) markPaid(ctx context.Context, tx *gorm.DB, o *domain.Order, transactionID string) error {
	now := s.clock.Now()
	err := s.transition(ctx, tx, o, domain.StatusPaid, func(o *domain.Order) {
		o.PaymentStatus = domain.PaymentOK
		o.PaidAt = &now
		if transactionID != "" {
			o.GatewayTransactionID = &transactionID
		}
	})
	if err != nil {
		return err
	}

	lines, err := s.repo.ListLines(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	o.Lines = lines
	items, err := s.issuer.Issue(ctx, tx, *o, lines, now)
	if err != nil {
		return err
	}
	o.Items = items
	return nil
}

func (s *Service) flagAttention(ctx context.Context, o *domain.Order, reason string) {
	if err := s.repo.SetAttention(ctx, s.db, o.ID, reason, s.clock.Now()); err != nil {
		s.log.Error("set attention reason failed", zap.String("order_number", o.OrderNumber), zap.Error(err))
		return
	}
	s.log.Error("order needs operator attention",
		zap.String("order_number", o.OrderNumber),
		zap.String("reason", reason),
	)
}

// afterPaid runs the post-commit side effects of a paid order. Failures are
// logged; the operator can resend tickets.
func (s *Service) afterPaid(ctx context.Context, o domain.Order) {
	s.metrics.RecordTicketsIssued(ctx, string(o.Channel), len(o.Items))
	s.sendConfirmation(ctx, o)
	s.publish(ctx, events.OrderPaid, o)
}

func (s *Service) sendConfirmation(ctx context.Context, o domain.Order) error {
	if err := s.notifier.SendConfirmation(ctx, o); err != nil {
		s.log.Error("confirmation email failed", zap.String("order_number", o.OrderNumber), zap.Error(err))
		return err
	}
	if err := s.repo.MarkConfirmationSent(ctx, s.db, o.ID, s.clock.Now()); err != nil {
		s.log.Warn("mark confirmation sent failed", zap.String("order_number", o.OrderNumber), zap.Error(err))
	}
	return nil
}
