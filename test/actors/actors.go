package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"hireflow/agreement"
	"hireflow/notify"
)

// Env is what every actor races against: one service over a shared store and
// the seeded parties and sources.
type Env struct {
	Service      *agreement.Service
	Employer     agreement.Actor
	Worker       agreement.Actor
	Applications []string
	Offers       []string
	Stats        *Stats
}

// Stats counts outcomes so the run can report what actually happened.
type Stats struct {
	Created   atomic.Int64
	Accepted  atomic.Int64
	Requested atomic.Int64
	Responses atomic.Int64
	Logged    atomic.Int64
	Paid      atomic.Int64
	Delivered atomic.Int64
	Conflicts atomic.Int64
	Transient atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("created=%d accepted=%d requested=%d responses=%d logged=%d paid=%d delivered=%d conflicts=%d transient=%d",
		s.Created.Load(), s.Accepted.Load(), s.Requested.Load(), s.Responses.Load(), s.Logged.Load(),
		s.Paid.Load(), s.Delivered.Load(), s.Conflicts.Load(), s.Transient.Load())
}

// check sorts an error into lost races, dropped connections and real bugs.
// Only the last aborts the run.
func (e *Env) check(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case errors.Is(err, agreement.ErrForbidden),
		errors.Is(err, agreement.ErrValidationFailed),
		errors.Is(err, agreement.ErrDuplicateWorkLog):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, agreement.ErrInvalidState),
		errors.Is(err, agreement.ErrNotFound),
		errors.Is(err, agreement.ErrAlreadyProcessed),
		errors.Is(err, agreement.ErrDuplicateAgreement):
		e.Stats.Conflicts.Add(1)
	default:
		e.Stats.Transient.Add(1)
	}
	return nil
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

func pause(minMS, spreadMS int) {
	time.Sleep(time.Duration(minMS+rand.Intn(spreadMS)) * time.Millisecond)
}

var paymentTypes = []string{"hourly", "daily", "fixed", "monthly", "milestone"}

// Creator keeps trying to build agreements from every seeded source. Each
// source must end up with exactly one agreement however many creators race.
func Creator(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		terms := agreement.TermsInput{
			PaymentType: paymentTypes[rand.Intn(len(paymentTypes))],
			Amount:      agreement.NumberOf(float64(50 + rand.Intn(950))),
		}
		var err error
		if n := len(env.Offers); n > 0 && rand.Intn(3) == 0 {
			_, err = env.Service.CreateFromOffer(ctx, env.Offers[rand.Intn(n)], terms)
		} else {
			_, err = env.Service.CreateFromApplication(ctx, env.Applications[rand.Intn(len(env.Applications))], terms)
		}
		if err == nil {
			env.Stats.Created.Add(1)
		}
		if err := env.check("create", err); err != nil {
			return err
		}
		pause(10, 30)
	}
	return nil
}

// Acceptor moves pending agreements to active as the worker. The employer
// occasionally withdraws one first.
func Acceptor(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		list, err := env.Service.GetUserAgreements(ctx, env.Worker.UserID)
		if err := env.check("list", err); err != nil {
			return err
		}
		for _, a := range list {
			if a.Status != agreement.StatusPendingWorkerAcceptance {
				continue
			}
			if rand.Intn(20) == 0 {
				_, err = env.Service.Withdraw(ctx, a.ID, env.Employer, "stress withdrawal")
			} else if _, err = env.Service.Accept(ctx, a.ID, env.Worker); err == nil {
				env.Stats.Accepted.Add(1)
			}
			if err := env.check("accept", err); err != nil {
				return err
			}
		}
		pause(20, 40)
	}
	return nil
}

// Requester opens modification and, rarely, termination requests from either side.
func Requester(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		a, ok := env.pick(ctx, func(a agreement.Agreement) bool {
			return !a.Status.Terminal() && a.Status != agreement.StatusPendingWorkerAcceptance
		})
		if !ok {
			pause(20, 40)
			continue
		}
		actor := env.Employer
		if rand.Intn(2) == 0 {
			actor = env.Worker
		}
		var err error
		if rand.Intn(10) == 0 {
			_, err = env.Service.RequestTermination(ctx, a.ID, actor, agreement.TerminationData{Reason: "stress termination"})
		} else {
			amount := float64(100 + rand.Intn(900))
			_, err = env.Service.RequestModification(ctx, a.ID, actor, agreement.ModificationData{
				PaymentTerms: &agreement.PaymentTermsPatch{Amount: &amount},
				Reason:       "stress rate change",
			})
		}
		if err == nil {
			env.Stats.Requested.Add(1)
		}
		if err := env.check("request", err); err != nil {
			return err
		}
		pause(30, 60)
	}
	return nil
}

// Responder answers pending requests as a random party, mostly accepting.
func Responder(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		list, err := env.Service.GetUserAgreements(ctx, env.Employer.UserID)
		if err := env.check("list", err); err != nil {
			return err
		}
		for _, a := range list {
			for _, r := range pending(a) {
				actor := env.Employer
				if rand.Intn(2) == 0 {
					actor = env.Worker
				}
				decision := agreement.DecisionAccepted
				if rand.Intn(5) == 0 {
					decision = agreement.DecisionRejected
				}
				var recorded bool
				if r.Kind == agreement.KindTermination {
					recorded, err = env.Service.RespondToTermination(ctx, a.ID, r.ID, actor, decision, "")
				} else {
					recorded, err = env.Service.RespondToModification(ctx, a.ID, r.ID, actor, decision, "")
				}
				if recorded {
					env.Stats.Responses.Add(1)
				}
				if err := env.check("respond", err); err != nil {
					return err
				}
			}
		}
		pause(10, 30)
	}
	return nil
}

// WorkLogger submits work on active agreements as the worker.
func WorkLogger(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		a, ok := env.pick(ctx, func(a agreement.Agreement) bool { return a.Status == agreement.StatusActive })
		if !ok {
			pause(20, 40)
			continue
		}
		hours := float64(1 + rand.Intn(8))
		days := float64(1 + rand.Intn(3))
		_, err := env.Service.LogWork(ctx, a.ID, env.Worker, agreement.WorkInput{
			Hours:       &hours,
			Days:        &days,
			Description: "stress shift",
		})
		if err == nil {
			env.Stats.Logged.Add(1)
		}
		if err := env.check("log work", err); err != nil {
			return err
		}
		pause(20, 40)
	}
	return nil
}

// Approver reviews pending work logs as the employer. Several approvers
// contend for the same logs; each must be settled at most once.
func Approver(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		list, err := env.Service.GetUserAgreements(ctx, env.Employer.UserID)
		if err := env.check("list", err); err != nil {
			return err
		}
		for _, a := range list {
			for _, wl := range a.WorkLogs {
				if wl.Status != agreement.WorkLogPending {
					continue
				}
				if rand.Intn(10) == 0 {
					_, err = env.Service.RejectWork(ctx, wl.ID, env.Employer, "stress rejection")
				} else if _, err = env.Service.ApproveWork(ctx, wl.ID, env.Employer, ""); err == nil {
					env.Stats.Paid.Add(1)
				}
				if err := env.check("review", err); err != nil {
					return err
				}
			}
		}
		pause(10, 30)
	}
	return nil
}

// OutboxWorker drains the outbox through the relay while writers keep filling it.
func OutboxWorker(ctx context.Context, env *Env, relay *notify.Relay, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		n, err := relay.Drain(ctx)
		env.Stats.Delivered.Add(int64(n))
		if err != nil {
			env.Stats.Transient.Add(1)
		}
		pause(50, 100)
	}
	return nil
}

func (e *Env) pick(ctx context.Context, keep func(agreement.Agreement) bool) (agreement.Agreement, bool) {
	list, err := e.Service.GetUserAgreements(ctx, e.Worker.UserID)
	if err != nil {
		e.Stats.Transient.Add(1)
		return agreement.Agreement{}, false
	}
	var matches []agreement.Agreement
	for _, a := range list {
		if keep(a) {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return agreement.Agreement{}, false
	}
	return matches[rand.Intn(len(matches))], true
}

func pending(a agreement.Agreement) []agreement.Request {
	var out []agreement.Request
	for _, list := range [][]agreement.Request{a.TerminationRequests, a.ModificationRequests} {
		for _, r := range list {
			if r.Status == agreement.RequestPending {
				out = append(out, r)
			}
		}
	}
	return out
}
