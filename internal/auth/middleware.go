package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/repository"
	apperrors "github.com/spec-kit/consult-case-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and loads the calling participant.
type AuthMiddleware struct {
	tokens       *TokenManager
	participants repository.ParticipantRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, participants repository.ParticipantRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, participants: participants}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	participant, err := m.participants.GetByID(c.Context(), claims.ParticipantID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewUnauthorized("participant not found")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, participant)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated participant.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Participant, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	participant, ok := val.(*domain.Participant)
	return participant, ok
}
