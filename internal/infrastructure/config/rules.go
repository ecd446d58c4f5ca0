package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// RoleRules is the YAML shape of the role classification file:
//
//	driver_domains: [driver.bit.internal]
//	driver_emails: [demodriver@bitbus.com]
//	student_domains: [bitmesra.ac.in]
type RoleRules struct {
	DriverDomains  []string `yaml:"driver_domains"  validate:"dive,required,fqdn"`
	DriverEmails   []string `yaml:"driver_emails"   validate:"dive,required,email"`
	StudentDomains []string `yaml:"student_domains" validate:"dive,required,fqdn"`
}

// DefaultRoleRules applies when no rules file is configured.
func DefaultRoleRules(demoDriverEmail string) domain.EmailRules {
	rules := domain.EmailRules{
		DriverDomains:  []string{"driver.bit.internal"},
		StudentDomains: []string{"bitmesra.ac.in", "student.bit.edu", "bit.edu", "bit.ac.in"},
	}
	if demoDriverEmail != "" {
		rules.DriverEmails = []string{strings.ToLower(demoDriverEmail)}
	}
	return rules
}

// LoadRoleRules reads and validates the rules file at path. An empty path
// yields the defaults. The demo driver email is always classified as driver.
func LoadRoleRules(path, demoDriverEmail string) (domain.EmailRules, error) {
	if path == "" {
		return DefaultRoleRules(demoDriverEmail), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.EmailRules{}, fmt.Errorf("read role rules: %w", err)
	}

	var rr RoleRules
	if err := yaml.Unmarshal(data, &rr); err != nil {
		return domain.EmailRules{}, fmt.Errorf("parse role rules: %w", err)
	}
	if err := validator.New().Struct(rr); err != nil {
		return domain.EmailRules{}, fmt.Errorf("invalid role rules: %w", err)
	}
	if len(rr.DriverDomains) == 0 && len(rr.DriverEmails) == 0 && demoDriverEmail == "" {
		return domain.EmailRules{}, errors.New("invalid role rules: no driver domains or emails")
	}

	rules := domain.EmailRules{
		DriverDomains:  rr.DriverDomains,
		DriverEmails:   rr.DriverEmails,
		StudentDomains: rr.StudentDomains,
	}
	if demoDriverEmail != "" && !contains(rules.DriverEmails, demoDriverEmail) {
		rules.DriverEmails = append(rules.DriverEmails, strings.ToLower(demoDriverEmail))
	}
	return rules, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
