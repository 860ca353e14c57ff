package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session revoke reasons.
const (
	RevokeRotated = "ROTATED"
	RevokeLogout  = "LOGOUT"
	RevokeReuse   = "REUSE_DETECTED"
)

type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshTokenRequest carries a refresh token for rotation or logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// TokenPair is returned by login and refresh. ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	User         UserInfo  `json:"user"`
}

// UserInfo is the public view of an account.
type UserInfo struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	FullName   string     `json:"full_name"`
	Role       UserRole   `json:"role"`
	Department *string    `json:"department,omitempty"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}

// JWTClaims is the access token payload. Department is empty for accounts outside a department.
type JWTClaims struct {
	UserID     string   `json:"user_id"`
	Role       UserRole `json:"role"`
	Email      string   `json:"email"`
	FullName   string   `json:"full_name"`
	Department string   `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Session is a refresh token grant. The token itself is never stored, only its SHA-256.
type Session struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	TokenHash    string     `db:"token_hash"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	RevokedAt    *time.Time `db:"revoked_at"`
	RevokeReason *string    `db:"revoke_reason"`
	IPAddress    string     `db:"ip_address"`
	UserAgent    string     `db:"user_agent"`
}

// Usable reports whether the session can still be exchanged at now.
func (s *Session) Usable(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
