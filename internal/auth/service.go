// Package auth turns a completed OAuth grant into a stored user and
// credential. The redirect/exchange flow itself lives outside this service;
// it hands over the raw grant result.
package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// Store is the slice of storage the grant handler needs.
type Store interface {
	UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error)
	SaveCredential(ctx context.Context, userID int64, access, refresh string, expiresAt time.Time) error
}

// Service records grants.
type Service struct {
	store       Store
	adminList   []string
	defaultDays int
	log         *zap.Logger
}

// New creates the grant handler. adminList is the configured admin
// allow-list; roles are re-derived from it on every grant. defaultDays
// seeds the fetch window of users seen for the first time.
func New(store Store, adminList []string, defaultDays int, log *zap.Logger) *Service {
	if defaultDays <= 0 {
		defaultDays = domain.DefaultFetchDays
	}
	return &Service{store: store, adminList: adminList, defaultDays: defaultDays, log: log}
}

// HandleGrant upserts the user (role derived fresh from the allow-list, so
// a user's role flips when the list changes) and stores the credential.
// refresh may be empty; providers often only return one on the first grant.
func (s *Service) HandleGrant(ctx context.Context, email, name, access, refresh string, expiresIn int) (*domain.User, error) {
	if email == "" || access == "" {
		return nil, fmt.Errorf("grant requires email and access token")
	}
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	// FetchDays only applies on first insert; an existing user's stored
	// preference survives re-grants.
	user, err := s.store.UpsertUser(ctx, &domain.User{
		Email:     email,
		Name:      name,
		Role:      domain.DeriveRole(email, s.adminList),
		FetchDays: s.defaultDays,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(expiresIn) * time.Second)
	if err := s.store.SaveCredential(ctx, user.ID, access, refresh, expiresAt); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	s.log.Info("grant recorded",
		zap.Int64("userID", user.ID),
		zap.String("email", user.Email),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}
