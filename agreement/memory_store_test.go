package agreement

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, Agreement{ID: "a1", EmployerID: "e", WorkerID: "w", Status: StatusActive, WorkLogs: []WorkLog{}})
	require.NoError(t, err)

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	got.WorkLogs = append(got.WorkLogs, WorkLog{ID: "leak"})

	again, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, again.WorkLogs)
}

func TestMemoryStoreUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, Agreement{ID: "a1", Status: StatusActive})
	require.NoError(t, err)

	_, err = s.Update(ctx, "a1", func(a *Agreement) error {
		a.Status = StatusCompleted
		a.WorkLogs = append(a.WorkLogs, WorkLog{ID: "wl-1"})
		return fmt.Errorf("%w: boom", ErrInvalidState)
	})
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, int64(1), got.Version)
	_, err = s.FindByWorkLog(ctx, "wl-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update(ctx, "missing", func(*Agreement) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, Agreement{ID: "a1", ApplicationID: "app-1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, Agreement{ID: "a2", ApplicationID: "app-1"})
	assert.ErrorIs(t, err, ErrDuplicateAgreement)
	_, err = s.Create(ctx, Agreement{ID: "a3", OfferID: "off-1"})
	require.NoError(t, err)

	_, err = s.Update(ctx, "a1", func(a *Agreement) error {
		a.WorkLogs = append(a.WorkLogs, WorkLog{ID: "wl-1"})
		return nil
	})
	require.NoError(t, err)
	_, err = s.Update(ctx, "a3", func(a *Agreement) error {
		a.WorkLogs = append(a.WorkLogs, WorkLog{ID: "wl-1"})
		return nil
	})
	assert.ErrorIs(t, err, ErrDuplicateWorkLog)

	owner, err := s.FindByWorkLog(ctx, "wl-1")
	require.NoError(t, err)
	assert.Equal(t, "a1", owner)
}

func TestMemoryStoreSerializesUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, Agreement{ID: "a1", Status: StatusActive})
	require.NoError(t, err)

	const writers = 32
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		i := i
		g.Go(func() error {
			_, err := s.Update(ctx, "a1", func(a *Agreement) error {
				a.WorkLogs = append(a.WorkLogs, WorkLog{ID: fmt.Sprintf("wl-%d", i)})
				return nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, got.WorkLogs, writers)
	assert.Equal(t, int64(writers+1), got.Version)
}

// Both parties and a stray retry race to answer one request; exactly one
// response per role lands and the request resolves once.
func TestConcurrentResponsesResolveOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.activeAgreement(t, TermsInput{Amount: NumberOf(1000)})
	req, err := h.svc.RequestTermination(ctx, a.ID, employer, TerminationData{Reason: "closing site"})
	require.NoError(t, err)

	var recorded atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		actor := employer
		if i%2 == 1 {
			actor = worker
		}
		g.Go(func() error {
			ok, err := h.svc.RespondToTermination(ctx, a.ID, req.ID, actor, DecisionAccepted, "")
			if ok {
				recorded.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(2), recorded.Load())

	got, err := h.svc.GetAgreement(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, got.Status)
}

func TestConcurrentApprovalsSettleOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.activeAgreement(t, TermsInput{PaymentType: "daily", Amount: NumberOf(120)})
	wl, err := h.svc.LogWork(ctx, a.ID, worker, WorkInput{Days: f64(1), Description: "shift"})
	require.NoError(t, err)

	var paid, refused atomic.Int32
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := h.svc.ApproveWork(ctx, wl.ID, employer, "")
			switch {
			case err == nil:
				paid.Add(1)
			case assert.ErrorIs(t, err, ErrAlreadyProcessed):
				refused.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), paid.Load())
	assert.Equal(t, int32(5), refused.Load())

	got, err := h.svc.GetAgreement(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, got.Payments, 1)
}
