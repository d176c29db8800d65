package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/consult-case-service/internal/auth"
	"github.com/spec-kit/consult-case-service/internal/config"
	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/repository"
	apperrors "github.com/spec-kit/consult-case-service/pkg/util/errorutil"
)

// AuthService coordinates registration and login flows.
type AuthService struct {
	participants repository.ParticipantRepository
	tokenMgr     *auth.TokenManager
	bcryptCost   int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, participants repository.ParticipantRepository) *AuthService {
	return &AuthService{
		participants: participants,
		tokenMgr:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost:   cfg.Auth.BcryptCost,
	}
}

// RegisterCustomer creates a new customer account. Experts and admins are
// provisioned out of band.
func (s *AuthService) RegisterCustomer(ctx context.Context, name, email, phone, password string) (*domain.Participant, string, time.Time, error) {
	if _, err := s.participants.GetByEmail(ctx, email); err == nil {
		return nil, "", time.Time{}, apperrors.NewConflict("email already registered", nil)
	} else if err != pgx.ErrNoRows {
		return nil, "", time.Time{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	participant := &domain.Participant{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		Status:       domain.ParticipantStatusActive,
	}
	if err := s.participants.Create(ctx, participant); err != nil {
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(participant.ID, participant.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return participant, token, exp, nil
}

// Login authenticates any participant role.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Participant, string, time.Time, error) {
	participant, err := s.participants.GetByEmail(ctx, email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if participant.Status != domain.ParticipantStatusActive {
		return nil, "", time.Time{}, apperrors.NewForbidden("account suspended")
	}
	if err := auth.ComparePassword(participant.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(participant.ID, participant.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return participant, token, exp, nil
}

// ChangePassword verifies the current password before updating.
func (s *AuthService) ChangePassword(ctx context.Context, participantID, currentPassword, newPassword string) error {
	participant, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(participant.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	participant.PasswordHash = hash
	return s.participants.Update(ctx, participant)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
