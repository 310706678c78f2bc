package agreement

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// settle prices a pending work log, records its payment and links the two.
func (a *Agreement) settle(workLogID string, paymentID, transactionID, method string, now time.Time) (Payment, error) {
	wl, err := a.reviewable(workLogID)
	if err != nil {
		return Payment{}, err
	}
	amount := CalculateAmount(*wl, *a)
	p := Payment{
		ID:            paymentID,
		TransactionID: transactionID,
		AgreementID:   a.ID,
		WorkLogID:     wl.ID,
		WorkerID:      wl.WorkerID,
		EmployerID:    a.EmployerID,
		Amount:        amount,
		Currency:      a.PaymentTerms.Currency,
		PaymentMethod: method,
		Status:        PaymentCompleted,
		ProcessedAt:   now,
	}
	a.Payments = append(a.Payments, p)

	wl.Status = WorkLogApproved
	wl.PaymentID = p.ID
	wl.Amount = &amount
	wl.ApprovedAt = &now
	return p, nil
}

// ApproveWork approves a pending work log on behalf of the employer and
// settles it. Once the pending check passes the payment is recorded even if
// ctx is cancelled during the simulated gateway delay.
func (s *Service) ApproveWork(ctx context.Context, workLogID string, actor Actor, paymentMethod string) (Payment, error) {
	agreementID, err := s.store.FindByWorkLog(ctx, workLogID)
	if err != nil {
		return Payment{}, err
	}
	current, err := s.store.Get(ctx, agreementID)
	if err != nil {
		return Payment{}, err
	}
	if err := current.requireRole(actor, RoleEmployer); err != nil {
		return Payment{}, err
	}
	if _, err := current.reviewable(workLogID); err != nil {
		return Payment{}, err
	}

	method := strings.TrimSpace(paymentMethod)
	if method == "" {
		method = s.paymentMethod
	}

	ctx = context.WithoutCancel(ctx)
	if s.settlementDelay > 0 {
		t := time.NewTimer(s.settlementDelay)
		<-t.C
	}

	var paid Payment
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		p, err := a.settle(workLogID, s.idGenerator(), s.transactionID(now), method, now)
		if err != nil {
			return err
		}
		paid = p
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	s.logger.InfoContext(ctx, "work log settled",
		"agreement_id", updated.ID,
		"work_log_id", workLogID,
		"payment_id", paid.ID,
		"transaction_id", paid.TransactionID,
		"amount", paid.Amount,
	)
	fields := map[string]any{
		"workLogId":     workLogID,
		"paymentId":     paid.ID,
		"transactionId": paid.TransactionID,
		"amount":        paid.Amount,
		"currency":      paid.Currency,
	}
	s.notify(ctx,
		event(updated, updated.WorkerID, EventWorkApproved, fields),
		event(updated, updated.WorkerID, EventPaymentProcessed, fields),
	)
	return paid, nil
}

// transactionID builds a human-displayable id such as TXN-20240501-3F2A9C1B7D.
func (s *Service) transactionID(now time.Time) string {
	raw := strings.ToUpper(strings.ReplaceAll(s.idGenerator(), "-", ""))
	if len(raw) > 10 {
		raw = raw[:10]
	}
	return fmt.Sprintf("TXN-%s-%s", now.Format("20060102"), raw)
}
