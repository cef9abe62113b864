package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/infrastructure/logging"
)

// AuthService implements sign-in, sign-up and session validation
type AuthService struct {
	api      ports.SupportAPI
	sessions ports.SessionStore
	realtime ports.Realtime
	tokens   ports.TokenInspector
	logger   *slog.Logger
}

var _ ports.AuthService = (*AuthService)(nil)

// NewAuthService creates a new authentication service. tokens may be nil,
// in which case only the backend decides whether a session is valid.
func NewAuthService(
	api ports.SupportAPI,
	sessions ports.SessionStore,
	realtime ports.Realtime,
	tokens ports.TokenInspector,
	logger *slog.Logger,
) ports.AuthService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuthService{
		api:      api,
		sessions: sessions,
		realtime: realtime,
		tokens:   tokens,
		logger:   logger.With("component", "auth_service"),
	}
}

// Login exchanges credentials for a session and persists it
func (s *AuthService) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	resp, err := s.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, resp)
}

// Register creates an account and signs it in
func (s *AuthService) Register(ctx context.Context, reg domain.Registration) (*domain.Session, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	resp, err := s.api.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, resp)
}

func (s *AuthService) persist(ctx context.Context, resp *domain.AuthResponse) (*domain.Session, error) {
	if resp == nil {
		return nil, apperrors.ErrUnauthorized
	}

	session := domain.SessionFromUser(resp.User, resp.Token)
	if err := session.Validate(); err != nil {
		if resp.Message != "" {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnauthorized, resp.Message)
		}
		return nil, err
	}

	if err := s.sessions.Set(session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	ctx = logging.WithUserID(ctx, session.UserID)
	logging.LoggerFromContext(ctx, s.logger).Info("signed in", "role", session.Role)
	return &session, nil
}

// Logout drops the connection and forgets the session
func (s *AuthService) Logout() error {
	s.realtime.Disconnect()
	if err := s.sessions.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}

// Validate confirms the persisted session with GET /profile. Expired or
// rejected tokens clear the session and return ErrUnauthorized. Other
// failures leave the session in place.
func (s *AuthService) Validate(ctx context.Context) (*domain.Session, error) {
	session := s.sessions.Current()
	if session == nil {
		return nil, apperrors.ErrNoSession
	}

	if s.tokens != nil && s.tokens.Expired(session.AuthToken) {
		s.invalidate("token expired")
		return nil, fmt.Errorf("%w: token expired", apperrors.ErrUnauthorized)
	}

	profile, err := s.api.Profile(ctx)
	if err != nil {
		if apperrors.IsAuthError(err) {
			s.invalidate("token rejected")
			return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
		}
		return nil, err
	}

	refreshed := *session
	if name := profile.Name; name != "" {
		refreshed.DisplayName = name
	}
	if email := profile.Email; email != "" {
		refreshed.Email = email
	}
	if role := domain.Role(profile.Role); role.IsValid() {
		refreshed.Role = role
	}
	if id := profile.Identifier(); id != "" && id != session.UserID {
		return nil, fmt.Errorf("%w: profile belongs to a different user", apperrors.ErrInvalidSession)
	}

	if refreshed != *session {
		if err := s.sessions.Set(refreshed); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}
	return &refreshed, nil
}

func (s *AuthService) invalidate(reason string) {
	s.logger.Warn("session invalidated", "reason", reason)
	s.realtime.Disconnect()
	if err := s.sessions.Clear(); err != nil {
		s.logger.Error("failed to clear session", "error", err)
	}
}
