package domain

import (
	"strings"

	apperrors "github.com/lorrc/agent-console/internal/core/errors"
)

// Role is the kind of account behind a session.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleUser     Role = "user"
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAgent, RoleUser, RoleCustomer, RoleAdmin:
		return true
	}
	return false
}

// Session is the authenticated identity persisted between runs.
type Session struct {
	UserID      string `json:"userId"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AuthToken   string `json:"authToken"`
}

// Validate checks the fields every other component relies on.
func (s Session) Validate() error {
	if s.UserID == "" || s.AuthToken == "" || !s.Role.IsValid() {
		return apperrors.ErrInvalidSession
	}
	return nil
}

// IsAgent reports whether the session belongs to a support agent. Only agents
// have a notification room.
func (s Session) IsAgent() bool {
	return s.Role == RoleAgent
}

// WireUser is the user document returned by the auth and profile endpoints.
type WireUser struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`
	Role    string `json:"role"`
	Status  string `json:"status"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Token   string `json:"token,omitempty"`
}

// Identifier returns whichever id field the backend populated.
func (u WireUser) Identifier() string {
	if u.ID != "" {
		return u.ID
	}
	return u.MongoID
}

// AuthResponse is the body of a successful login or registration.
type AuthResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	User    WireUser `json:"user"`
	Token   string   `json:"token"`
}

// SessionFromUser builds a session from a backend user document. An empty
// token falls back to the one embedded in the user document.
func SessionFromUser(u WireUser, token string) Session {
	if token == "" {
		token = u.Token
	}
	return Session{
		UserID:      u.Identifier(),
		Role:        Role(strings.ToLower(u.Role)),
		DisplayName: u.Name,
		Email:       u.Email,
		AuthToken:   token,
	}
}

// Credentials are the inputs of a login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate only checks presence; the backend owns the real rules.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return apperrors.ErrInvalidEmail
	}
	if c.Password == "" {
		return apperrors.ErrInvalidPassword
	}
	return nil
}

// Registration are the inputs of a sign-up.
type Registration struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmedPassword string `json:"confirmedPassword"`
}

// Validate only checks presence and that both passwords agree.
func (r Registration) Validate() error {
	if err := (Credentials{Email: r.Email, Password: r.Password}).Validate(); err != nil {
		return err
	}
	if r.Password != r.ConfirmedPassword {
		return apperrors.ErrPasswordMatch
	}
	return nil
}
