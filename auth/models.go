package auth

import "time"

type Role string

const (
	RoleEmployer Role = "employer"
	RoleWorker   Role = "worker"
	RoleAdmin    Role = "admin"
)

// User is an employer, worker or admin account. It mirrors the users table
// and carries no JSON tags; handlers shape their own responses.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Phone        *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone,omitempty"`
	Role     Role    `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
