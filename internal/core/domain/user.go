package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the flat role flag persisted as users/{id}.userType.
type Role string

const (
	RoleStudent Role = "student"
	RoleDriver  Role = "driver"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrResetTokenInvalid  = errors.New("password reset link is invalid or has expired")
)

// ParseRole returns the role for s, or false when s is empty or unknown.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleDriver:
		return RoleDriver, true
	}
	return "", false
}

// Identity is what the identity provider hands back after authentication.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// StudentInfo is parsed out of an institutional email address.
type StudentInfo struct {
	RollNumber string `json:"rollNumber"`
	BatchYear  string `json:"batchYear"`
	FullBatch  string `json:"fullBatch"`
}

// User models users/{id}.
type User struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Role      Role         `json:"userType,omitempty"`
	Student   *StudentInfo `json:"student,omitempty"`
	CreatedAt time.Time    `json:"createdAt,omitempty"`
	LastLogin time.Time    `json:"lastLogin"`
}

// Credential is a password-based account held by the local identity provider.
type Credential struct {
	UID          string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is an issued login.
type Session struct {
	Token      string    `json:"token"`
	TokenID    string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
	Persistent bool      `json:"persistent"`
	User       User      `json:"user"`
}

// EmailRules classify an identity by email when no role is persisted.
// Driver rules are checked first; anything unmatched is a student.
type EmailRules struct {
	DriverDomains  []string
	DriverEmails   []string
	StudentDomains []string
}

// Classify applies the rules to email.
func (r EmailRules) Classify(email string) Role {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return RoleStudent
	}
	for _, e := range r.DriverEmails {
		if email == strings.ToLower(e) {
			return RoleDriver
		}
	}
	if matchesDomain(email, r.DriverDomains) {
		return RoleDriver
	}
	if matchesDomain(email, r.StudentDomains) {
		return RoleStudent
	}
	return RoleStudent
}

func matchesDomain(email string, domains []string) bool {
	for _, d := range domains {
		if strings.HasSuffix(email, "@"+strings.ToLower(strings.TrimPrefix(d, "@"))) {
			return true
		}
	}
	return false
}

// PasswordCheck is the advisory result of the password policy.
type PasswordCheck struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// PasswordPolicyError carries every rule a password broke.
type PasswordPolicyError struct {
	Reasons []string
}

func (e *PasswordPolicyError) Error() string {
	return "password does not meet policy: " + strings.Join(e.Reasons, "; ")
}
