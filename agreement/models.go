package agreement

import "time"

// Status is the lifecycle state of an agreement.
type Status string

const (
	StatusPendingWorkerAcceptance Status = "pending_worker_acceptance"
	StatusActive                  Status = "active"
	StatusRejected                Status = "rejected"
	StatusWithdrawn               Status = "withdrawn"
	StatusModificationPending     Status = "modification_pending"
	StatusTerminationPending      Status = "termination_pending"
	StatusTerminated              Status = "terminated"
	StatusCompleted               Status = "completed"
)

// Valid reports whether s is one of the eight lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingWorkerAcceptance, StatusActive, StatusRejected, StatusWithdrawn,
		StatusModificationPending, StatusTerminationPending, StatusTerminated, StatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusWithdrawn, StatusTerminated, StatusCompleted:
		return true
	default:
		return false
	}
}

// Role tags which party of the agreement is acting.
type Role string

const (
	RoleEmployer Role = "employer"
	RoleWorker   Role = "worker"
)

func (r Role) valid() bool {
	return r == RoleEmployer || r == RoleWorker
}

// PaymentType selects how logged work is priced.
type PaymentType string

const (
	PaymentHourly     PaymentType = "hourly"
	PaymentDaily      PaymentType = "daily"
	PaymentWeekly     PaymentType = "weekly"
	PaymentMonthly    PaymentType = "monthly"
	PaymentFixed      PaymentType = "fixed"
	PaymentMilestone  PaymentType = "milestone"
	PaymentCommission PaymentType = "commission"
	PaymentRetainer   PaymentType = "retainer"
	PaymentPieceRate  PaymentType = "piece_rate"
)

func (t PaymentType) valid() bool {
	switch t {
	case PaymentHourly, PaymentDaily, PaymentWeekly, PaymentMonthly, PaymentFixed,
		PaymentMilestone, PaymentCommission, PaymentRetainer, PaymentPieceRate:
		return true
	default:
		return false
	}
}

// PaymentTerms describes how and how much the worker is paid.
type PaymentTerms struct {
	Type       PaymentType `json:"type"`
	Amount     float64     `json:"amount"`
	Schedule   string      `json:"schedule"`
	Currency   string      `json:"currency"`
	HourlyRate *float64    `json:"hourlyRate,omitempty"`
}

// WorkTerms describes when, where and how long the work happens.
type WorkTerms struct {
	WorkType        string    `json:"workType"`
	Location        string    `json:"location"`
	Duration        int       `json:"duration"`
	WeeklyHours     float64   `json:"weeklyHours"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	ProbationPeriod int       `json:"probationPeriod"`
	NoticePeriod    int       `json:"noticePeriod"`
	WorkingDays     string    `json:"workingDays"`
	ShiftTiming     string    `json:"shiftTiming"`
	OvertimePolicy  string    `json:"overtimePolicy"`
}

// LegalTerms carries the contractual clauses agreed by both parties.
type LegalTerms struct {
	IPRights           string `json:"ipRights"`
	Confidentiality    string `json:"confidentiality"`
	EquipmentProvision string `json:"equipmentProvision"`
	AdditionalTerms    string `json:"additionalTerms"`
}

// Agreement is the aggregate governing one engagement between an employer and a worker.
// Work logs, payments and consensus requests are owned exclusively by it.
type Agreement struct {
	ID            string `json:"id"`
	EmployerID    string `json:"employerId"`
	WorkerID      string `json:"workerId"`
	JobID         string `json:"jobId"`
	JobTitle      string `json:"jobTitle,omitempty"`
	ApplicationID string `json:"applicationId,omitempty"`
	OfferID       string `json:"offerId,omitempty"`
	Status        Status `json:"status"`

	PaymentTerms PaymentTerms `json:"paymentTerms"`
	WorkTerms    WorkTerms    `json:"workTerms"`
	LegalTerms   LegalTerms   `json:"legalTerms"`

	WorkLogs             []WorkLog `json:"workLogs"`
	Payments             []Payment `json:"payments"`
	ModificationRequests []Request `json:"modificationRequests"`
	TerminationRequests  []Request `json:"terminationRequests"`

	RejectionReason  string `json:"rejectionReason,omitempty"`
	WithdrawalReason string `json:"withdrawalReason,omitempty"`

	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	AcceptedAt   *time.Time `json:"acceptedAt,omitempty"`
	RejectedAt   *time.Time `json:"rejectedAt,omitempty"`
	WithdrawnAt  *time.Time `json:"withdrawnAt,omitempty"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`

	// Version increments on every persisted write.
	Version int64 `json:"version"`
}

// HasParty reports whether userID is the employer or the worker.
func (a Agreement) HasParty(userID string) bool {
	return userID != "" && (a.EmployerID == userID || a.WorkerID == userID)
}

// TotalSettled sums every payment recorded against the agreement.
func (a Agreement) TotalSettled() float64 {
	var total float64
	for _, p := range a.Payments {
		total += p.Amount
	}
	return roundCents(total)
}

func (a *Agreement) workLog(id string) *WorkLog {
	for i := range a.WorkLogs {
		if a.WorkLogs[i].ID == id {
			return &a.WorkLogs[i]
		}
	}
	return nil
}

// WorkLogStatus is the status of a single work submission.
type WorkLogStatus string

const (
	WorkLogPending  WorkLogStatus = "pending"
	WorkLogApproved WorkLogStatus = "approved"
	WorkLogRejected WorkLogStatus = "rejected"
)

// WorkLog is a worker's claim of time or units worked.
type WorkLog struct {
	ID              string        `json:"id"`
	AgreementID     string        `json:"agreementId"`
	WorkerID        string        `json:"workerId"`
	JobTitle        string        `json:"jobTitle,omitempty"`
	Date            time.Time     `json:"date"`
	Hours           *float64      `json:"hours,omitempty"`
	Days            *float64      `json:"days,omitempty"`
	Description     string        `json:"description"`
	MilestoneAmount *float64      `json:"milestoneAmount,omitempty"`
	Status          WorkLogStatus `json:"status"`
	Amount          *float64      `json:"amount,omitempty"`
	PaymentID       string        `json:"paymentId,omitempty"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	ApprovedAt      *time.Time    `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time    `json:"rejectedAt,omitempty"`
}

// Units returns whichever of hours or days was logged.
func (w WorkLog) Units() float64 {
	switch {
	case w.Hours != nil:
		return *w.Hours
	case w.Days != nil:
		return *w.Days
	default:
		return 0
	}
}

// PaymentStatus mirrors the state of a settlement record.
type PaymentStatus string

const (
	PaymentCompleted  PaymentStatus = "completed"
	PaymentProcessing PaymentStatus = "processing"
	PaymentFailed     PaymentStatus = "failed"
)

// Payment is the immutable settlement of one approved work log.
type Payment struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transactionId"`
	AgreementID   string        `json:"agreementId"`
	WorkLogID     string        `json:"workLogId"`
	WorkerID      string        `json:"workerId"`
	EmployerID    string        `json:"employerId"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	PaymentMethod string        `json:"paymentMethod"`
	Status        PaymentStatus `json:"status"`
	ProcessedAt   time.Time     `json:"processedAt"`
}

// Actor identifies the caller of a mutating operation.
type Actor struct {
	UserID string
	Name   string
	Role   Role
}
