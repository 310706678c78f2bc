package agreement

import (
	"fmt"
	"time"
)

// Kind distinguishes the two uses of the consensus protocol.
type Kind string

const (
	KindModification Kind = "modification"
	KindTermination  Kind = "termination"
)

// RequestStatus is the outcome of a consensus request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Decision is one party's answer to a request.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

func (d Decision) valid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

// Phase is the position of a request in the dual-approval flow.
type Phase string

const (
	PhaseAwaitingBoth     Phase = "awaiting_both"
	PhaseAwaitingEmployer Phase = "awaiting_employer"
	PhaseAwaitingWorker   Phase = "awaiting_worker"
	PhaseResolved         Phase = "resolved"
)

// ResolutionSuperseded marks a request auto-rejected because a termination was accepted.
const ResolutionSuperseded = "superseded"

// Response records one party's decision.
type Response struct {
	Decision    Decision  `json:"response"`
	Message     string    `json:"message,omitempty"`
	RespondedAt time.Time `json:"respondedAt"`
}

// Responses holds at most one response per role.
type Responses struct {
	Employer *Response `json:"employer,omitempty"`
	Worker   *Response `json:"worker,omitempty"`
}

// PaymentTermsPatch overwrites only the fields it sets.
type PaymentTermsPatch struct {
	Type       *PaymentType `json:"type,omitempty"`
	Amount     *float64     `json:"amount,omitempty"`
	Schedule   *string      `json:"schedule,omitempty"`
	Currency   *string      `json:"currency,omitempty"`
	HourlyRate *float64     `json:"hourlyRate,omitempty"`
}

// WorkTermsPatch overwrites only the fields it sets.
type WorkTermsPatch struct {
	WorkType        *string    `json:"workType,omitempty"`
	Location        *string    `json:"location,omitempty"`
	Duration        *int       `json:"duration,omitempty"`
	WeeklyHours     *float64   `json:"weeklyHours,omitempty"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	ProbationPeriod *int       `json:"probationPeriod,omitempty"`
	NoticePeriod    *int       `json:"noticePeriod,omitempty"`
	WorkingDays     *string    `json:"workingDays,omitempty"`
	ShiftTiming     *string    `json:"shiftTiming,omitempty"`
	OvertimePolicy  *string    `json:"overtimePolicy,omitempty"`
}

// ModificationData is the payload of a modification request.
type ModificationData struct {
	PaymentTerms *PaymentTermsPatch `json:"paymentTerms,omitempty"`
	WorkTerms    *WorkTermsPatch    `json:"workTerms,omitempty"`
	Reason       string             `json:"reason,omitempty"`
}

// TerminationData is the payload of a termination request.
type TerminationData struct {
	Reason        string     `json:"reason"`
	Details       string     `json:"details,omitempty"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty"`
}

// Request is a proposed change awaiting independent decisions from both parties.
type Request struct {
	ID              string        `json:"id"`
	AgreementID     string        `json:"agreementId"`
	Kind            Kind          `json:"kind"`
	RequestedBy     string        `json:"requestedBy"`
	RequestedByName string        `json:"requestedByName,omitempty"`
	RequestedByRole Role          `json:"requestedByRole"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	Responses       Responses     `json:"responses"`
	ResolvedAt      *time.Time    `json:"resolvedAt,omitempty"`
	Resolution      string        `json:"resolution,omitempty"`

	ModificationData *ModificationData `json:"modificationData,omitempty"`

	Reason        string     `json:"reason,omitempty"`
	Details       string     `json:"details,omitempty"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty"`
}

// Phase derives the request's position from its status and responses.
func (r Request) Phase() Phase {
	if r.Status != RequestPending {
		return PhaseResolved
	}
	switch {
	case r.Responses.Employer == nil && r.Responses.Worker == nil:
		return PhaseAwaitingBoth
	case r.Responses.Employer == nil:
		return PhaseAwaitingEmployer
	case r.Responses.Worker == nil:
		return PhaseAwaitingWorker
	default:
		// both present but not yet resolved; record() never leaves a request here
		return PhaseResolved
	}
}

// record stores role's response and resolves the request when both roles answered.
func (r *Request) record(role Role, resp Response) (resolved bool, err error) {
	phase := r.Phase()
	switch {
	case phase == PhaseResolved:
		return false, fmt.Errorf("%w: request %s already resolved", ErrInvalidState, r.ID)
	case role == RoleEmployer && phase == PhaseAwaitingWorker:
		return false, fmt.Errorf("%w: employer already responded to %s", ErrInvalidState, r.ID)
	case role == RoleWorker && phase == PhaseAwaitingEmployer:
		return false, fmt.Errorf("%w: worker already responded to %s", ErrInvalidState, r.ID)
	}

	stored := resp
	if role == RoleEmployer {
		r.Responses.Employer = &stored
	} else {
		r.Responses.Worker = &stored
	}
	if r.Responses.Employer == nil || r.Responses.Worker == nil {
		return false, nil
	}

	r.Status = RequestRejected
	if r.Responses.Employer.Decision == DecisionAccepted && r.Responses.Worker.Decision == DecisionAccepted {
		r.Status = RequestAccepted
	}
	at := resp.RespondedAt
	r.ResolvedAt = &at
	return true, nil
}

func (a *Agreement) requests(kind Kind) *[]Request {
	if kind == KindTermination {
		return &a.TerminationRequests
	}
	return &a.ModificationRequests
}

func (a *Agreement) hasPending(kind Kind) bool {
	for _, r := range *a.requests(kind) {
		if r.Status == RequestPending {
			return true
		}
	}
	return false
}

func (a *Agreement) request(kind Kind, id string) *Request {
	list := a.requests(kind)
	for i := range *list {
		if (*list)[i].ID == id {
			return &(*list)[i]
		}
	}
	return nil
}

// openRequest appends req as pending and moves the agreement into the kind's
// pending sub-state. A termination may be opened over a pending modification;
// the reverse is refused.
func (a *Agreement) openRequest(req Request) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: agreement %s is %s", ErrInvalidState, a.ID, a.Status)
	}
	switch a.Status {
	case StatusActive:
	case StatusModificationPending:
		if req.Kind == KindModification && !a.hasPending(KindModification) {
			break
		}
		if req.Kind == KindTermination {
			break
		}
		return fmt.Errorf("%w: a modification request is already pending on %s", ErrInvalidState, a.ID)
	case StatusTerminationPending:
		if req.Kind == KindTermination && !a.hasPending(KindTermination) {
			break
		}
		return fmt.Errorf("%w: a termination request is pending on %s", ErrInvalidState, a.ID)
	default:
		return fmt.Errorf("%w: agreement %s is %s", ErrInvalidState, a.ID, a.Status)
	}
	if a.hasPending(req.Kind) {
		return fmt.Errorf("%w: a %s request is already pending on %s", ErrInvalidState, req.Kind, a.ID)
	}
	if req.Kind == KindModification && a.changesPaymentType(req.ModificationData) && a.hasPendingWork() {
		return fmt.Errorf("%w: settle pending work logs on %s before changing the payment type", ErrInvalidState, a.ID)
	}

	req.Status = RequestPending
	req.Responses = Responses{}
	list := a.requests(req.Kind)
	*list = append(*list, req)
	a.settleStatus()
	return nil
}

// respond applies a response and, on resolution, the agreed effect.
func (a *Agreement) respond(kind Kind, requestID string, role Role, resp Response) (*Request, bool, error) {
	if a.Status.Terminal() {
		return nil, false, fmt.Errorf("%w: agreement %s is %s", ErrInvalidState, a.ID, a.Status)
	}
	req := a.request(kind, requestID)
	if req == nil {
		return nil, false, fmt.Errorf("%w: %s request %s", ErrNotFound, kind, requestID)
	}
	resolved, err := req.record(role, resp)
	if err != nil || !resolved {
		a.settleStatus()
		return req, false, err
	}

	if req.Status == RequestAccepted {
		switch kind {
		case KindModification:
			a.applyModification(req.ModificationData)
		case KindTermination:
			at := resp.RespondedAt
			a.TerminatedAt = &at
			a.supersedePending(req.ID, at)
			a.Status = StatusTerminated
			return req, true, nil
		}
	}
	a.settleStatus()
	return req, true, nil
}

// supersedePending rejects every other pending request once a termination wins.
func (a *Agreement) supersedePending(exceptID string, at time.Time) {
	for _, kind := range []Kind{KindModification, KindTermination} {
		list := a.requests(kind)
		for i := range *list {
			r := &(*list)[i]
			if r.ID == exceptID || r.Status != RequestPending {
				continue
			}
			r.Status = RequestRejected
			r.Resolution = ResolutionSuperseded
			stamp := at
			r.ResolvedAt = &stamp
		}
	}
}

// settleStatus re-derives a non-terminal status from the outstanding requests.
func (a *Agreement) settleStatus() {
	if a.Status.Terminal() || a.Status == StatusPendingWorkerAcceptance {
		return
	}
	switch {
	case a.hasPending(KindTermination):
		a.Status = StatusTerminationPending
	case a.hasPending(KindModification):
		a.Status = StatusModificationPending
	default:
		a.Status = StatusActive
	}
}

func (a *Agreement) changesPaymentType(data *ModificationData) bool {
	if data == nil || data.PaymentTerms == nil || data.PaymentTerms.Type == nil {
		return false
	}
	return *data.PaymentTerms.Type != a.PaymentTerms.Type
}

func (a *Agreement) hasPendingWork() bool {
	for _, wl := range a.WorkLogs {
		if wl.Status == WorkLogPending {
			return true
		}
	}
	return false
}

func (a *Agreement) applyModification(data *ModificationData) {
	if data == nil {
		return
	}
	if p := data.PaymentTerms; p != nil {
		t := &a.PaymentTerms
		if p.Type != nil && p.Type.valid() {
			t.Type = *p.Type
		}
		if p.Amount != nil && *p.Amount > 0 {
			t.Amount = *p.Amount
		}
		if p.Schedule != nil {
			t.Schedule = *p.Schedule
		}
		if p.Currency != nil {
			t.Currency = *p.Currency
		}
		if p.HourlyRate != nil && *p.HourlyRate > 0 {
			rate := *p.HourlyRate
			t.HourlyRate = &rate
		}
	}
	if p := data.WorkTerms; p != nil {
		t := &a.WorkTerms
		if p.WorkType != nil {
			t.WorkType = *p.WorkType
		}
		if p.Location != nil {
			t.Location = *p.Location
		}
		if p.WeeklyHours != nil && *p.WeeklyHours > 0 {
			t.WeeklyHours = *p.WeeklyHours
		}
		if p.ProbationPeriod != nil && *p.ProbationPeriod >= 0 {
			t.ProbationPeriod = *p.ProbationPeriod
		}
		if p.NoticePeriod != nil && *p.NoticePeriod >= 0 {
			t.NoticePeriod = *p.NoticePeriod
		}
		if p.WorkingDays != nil {
			t.WorkingDays = *p.WorkingDays
		}
		if p.ShiftTiming != nil {
			t.ShiftTiming = *p.ShiftTiming
		}
		if p.OvertimePolicy != nil {
			t.OvertimePolicy = *p.OvertimePolicy
		}

		rederive := false
		if p.StartDate != nil && !p.StartDate.IsZero() {
			t.StartDate = dateOnly(*p.StartDate)
			rederive = true
		}
		if p.Duration != nil && *p.Duration > 0 {
			t.Duration = *p.Duration
			rederive = true
		}
		if p.EndDate != nil && !p.EndDate.IsZero() {
			t.EndDate = dateOnly(*p.EndDate)
		} else if rederive {
			t.EndDate = t.StartDate.AddDate(0, 0, t.Duration)
		}
		if !t.EndDate.After(t.StartDate) {
			t.EndDate = t.StartDate.AddDate(0, 0, t.Duration)
		}
		if t.EndDate.After(latestDate) {
			t.EndDate = latestDate
		}
	}
}

// validate rejects patches that would break the amount, duration or date invariants.
func (m ModificationData) validate() error {
	if m.PaymentTerms == nil && m.WorkTerms == nil {
		return fmt.Errorf("%w: modification carries no term changes", ErrValidationFailed)
	}
	if p := m.PaymentTerms; p != nil {
		if p.Amount != nil && *p.Amount <= 0 {
			return fmt.Errorf("%w: amount must be positive", ErrValidationFailed)
		}
		if p.Type != nil && !p.Type.valid() {
			return fmt.Errorf("%w: unknown payment type %q", ErrValidationFailed, *p.Type)
		}
		if p.HourlyRate != nil && *p.HourlyRate <= 0 {
			return fmt.Errorf("%w: hourly rate must be positive", ErrValidationFailed)
		}
	}
	if p := m.WorkTerms; p != nil {
		if p.Duration != nil && (*p.Duration <= 0 || *p.Duration > maxDurationDays) {
			return fmt.Errorf("%w: duration must be between 1 and %d days", ErrValidationFailed, maxDurationDays)
		}
		cutoff := latestDate.AddDate(0, 0, -maxDurationDays)
		for _, d := range []*time.Time{p.StartDate, p.EndDate} {
			if d != nil && d.After(cutoff) {
				return fmt.Errorf("%w: date %s is too far in the future", ErrValidationFailed, d.Format("2006-01-02"))
			}
		}
		if p.StartDate != nil && p.EndDate != nil && !p.EndDate.After(*p.StartDate) {
			return fmt.Errorf("%w: end date must be after start date", ErrValidationFailed)
		}
	}
	return nil
}
