package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
	"github.com/campusbus/bus-tracker/internal/infrastructure/metrics"
)

// RoleResolver is the one place an identity is mapped to student or driver.
type RoleResolver struct {
	users ports.UserRepository
	rules domain.EmailRules
	log   zerolog.Logger
}

func NewRoleResolver(users ports.UserRepository, rules domain.EmailRules, log zerolog.Logger) *RoleResolver {
	return &RoleResolver{
		users: users,
		rules: rules,
		log:   log,
	}
}

// Resolve returns the persisted role when there is one. Otherwise it
// classifies the email and persists the result best-effort; a failed write
// only affects later sessions.
func (r *RoleResolver) Resolve(ctx context.Context, id domain.Identity) domain.Role {
	user, err := r.users.FindByID(ctx, id.UID)
	switch {
	case err == nil:
		if role, ok := domain.ParseRole(string(user.Role)); ok {
			metrics.RoleResolutionsTotal.WithLabelValues("stored").Inc()
			return role
		}
	case errors.Is(err, domain.ErrUserNotFound):
	default:
		r.log.Warn().Err(err).Str("uid", id.UID).Msg("failed to read stored role, classifying by email")
	}

	role := r.rules.Classify(id.Email)
	metrics.RoleResolutionsTotal.WithLabelValues("email_rules").Inc()

	if err := r.users.SetRole(ctx, id.UID, role); err != nil {
		r.log.Warn().Err(err).Str("uid", id.UID).Str("role", string(role)).Msg("failed to persist resolved role")
	}
	return role
}
