package job

import "time"

type Status string

const (
	StatusOpen   Status = "open"
	StatusFilled Status = "filled"
	StatusClosed Status = "closed"
)

// Job is an employer's posting. Agreements and work logs snapshot its title.
type Job struct {
	ID          string
	EmployerID  string
	Title       string
	Description string
	PayType     string
	PayAmount   float64
	Status      Status
	CreatedAt   time.Time
}
