package hiring

import "time"

type Status string

const (
	StatusPending          Status = "pending"
	StatusAccepted         Status = "accepted"
	StatusRejected         Status = "rejected"
	StatusDeclined         Status = "declined"
	StatusAgreementCreated Status = "agreement_created"
)

// Application is a worker's application to an employer's job. JobTitle and
// EmployerID are read from the job.
type Application struct {
	ID             string    `json:"id"`
	JobID          string    `json:"jobId"`
	JobTitle       string    `json:"jobTitle"`
	EmployerID     string    `json:"employerId"`
	WorkerID       string    `json:"workerId"`
	CoverLetter    string    `json:"coverLetter,omitempty"`
	ProposedAmount float64   `json:"proposedAmount"`
	Status         Status    `json:"status"`
	AgreementID    *string   `json:"agreementId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Offer is a direct proposal from an employer to a worker, optionally tied to a job.
type Offer struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId,omitempty"`
	JobTitle    string    `json:"jobTitle,omitempty"`
	EmployerID  string    `json:"employerId"`
	WorkerID    string    `json:"workerId"`
	Title       string    `json:"title,omitempty"`
	Message     string    `json:"message,omitempty"`
	Amount      float64   `json:"amount"`
	Status      Status    `json:"status"`
	AgreementID *string   `json:"agreementId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DisplayTitle is the offer's own title, falling back to the job title.
func (o Offer) DisplayTitle() string {
	if o.Title != "" {
		return o.Title
	}
	return o.JobTitle
}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusDeclined, StatusAgreementCreated:
		return true
	}
	return false
}

// Filters scopes a listing to one party, optionally one status, and a page.
type Filters struct {
	WorkerID   string
	EmployerID string
	Status     Status
	Page       int
	PageSize   int
}
