package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

const minPasswordLength = 8

// ValidatePassword reports every policy rule the password breaks. The policy
// is advisory for clients and enforced when driver accounts are created or
// reset.
func ValidatePassword(password string) domain.PasswordCheck {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	errs := make([]string, 0, 5)
	if utf8.RuneCountInString(password) < minPasswordLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", minPasswordLength))
	}
	if !upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if !symbol {
		errs = append(errs, "Password must contain at least one special character")
	}

	return domain.PasswordCheck{Valid: len(errs) == 0, Errors: errs}
}

// StudentEmailRule matches <prefix><5-digit id>.<2-digit batch>@<domain>.
type StudentEmailRule struct {
	Prefix string
	Domain string
	re     *regexp.Regexp
}

// DefaultStudentEmailRule is the institute's address format.
var DefaultStudentEmailRule = NewStudentEmailRule("btech", "bitmesra.ac.in")

func NewStudentEmailRule(prefix, domain string) *StudentEmailRule {
	pattern := fmt.Sprintf(`^%s(\d{5})\.(\d{2})@%s$`,
		regexp.QuoteMeta(strings.ToLower(prefix)),
		regexp.QuoteMeta(strings.ToLower(domain)))
	return &StudentEmailRule{Prefix: prefix, Domain: domain, re: regexp.MustCompile(pattern)}
}

// Extract parses the roll number and batch out of email.
func (r *StudentEmailRule) Extract(email string) (domain.StudentInfo, bool) {
	m := r.re.FindStringSubmatch(email)
	if m == nil {
		return domain.StudentInfo{}, false
	}
	return domain.StudentInfo{
		RollNumber: m[1],
		BatchYear:  m[2],
		FullBatch:  "20" + m[2],
	}, true
}

// Validate rejects anything that is not an institutional student address.
func (r *StudentEmailRule) Validate(email string) error {
	if !r.re.MatchString(email) {
		return domain.ErrInvalidStudentEmail
	}
	return nil
}

// ExtractStudentInfo applies DefaultStudentEmailRule.
func ExtractStudentInfo(email string) (domain.StudentInfo, bool) {
	return DefaultStudentEmailRule.Extract(email)
}
