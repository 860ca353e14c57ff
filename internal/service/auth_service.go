package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

const tokenTypeBearer = "Bearer"

type accountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

type sessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	FindByHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error)
}

// AuthConfig holds token lifetimes and the HS256 signing secret.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AuthService signs access tokens and manages refresh sessions. Every refresh rotates the session;
// presenting a token that was already rotated away is treated as theft and closes every session of
// the account.
type AuthService struct {
	users     accountStore
	sessions  sessionStore
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

func NewAuthService(users accountStore, sessions sessionStore, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		validator: validator.New(),
		logger:    logger.Named("auth"),
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login checks credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.ErrInvalidCredentials
	case err != nil:
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	// Compare before the active check so the response does not reveal which accounts exist.
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	pair, err := s.open(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, pair.IssuedAt); err != nil {
		s.logger.Warn("failed to stamp last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	return pair, nil
}

// Refresh rotates the presented session into a new one.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	session, err := s.session(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if session.RevokedAt != nil {
		s.closeAll(ctx, session.UserID, models.RevokeReuse, now)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has been revoked")
	}
	if !session.Usable(now) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has expired")
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if !user.Active {
		s.closeAll(ctx, user.ID, models.RevokeLogout, now)
		return nil, appErrors.ErrInactiveAccount
	}

	won, err := s.sessions.Revoke(ctx, session.ID, models.RevokeRotated, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to rotate session")
	}
	if !won {
		// A concurrent refresh rotated this session first.
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has been revoked")
	}
	return s.open(ctx, user, req.IP, req.UserAgent)
}

// Logout closes the session behind refreshToken. It must belong to userID.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	session, err := s.session(ctx, refreshToken)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "refresh token belongs to another account")
	}
	if _, err := s.sessions.Revoke(ctx, session.ID, models.RevokeLogout, s.now()); err != nil {
		return appErrors.Internal(err, "failed to revoke session")
	}
	return nil
}

// LogoutAll closes every open session of userID and returns how many were closed.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID, models.RevokeLogout, s.now())
	if err != nil {
		return 0, appErrors.Internal(err, "failed to revoke sessions")
	}
	return n, nil
}

// Profile returns the current view of userID's account.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// ValidateToken verifies an HS256 access token and returns its claims.
func (s *AuthService) ValidateToken(raw string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) session(ctx context.Context, refreshToken string) (*models.Session, error) {
	session, err := s.sessions.FindByHash(ctx, hashToken(refreshToken))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not recognised")
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load session")
	}
	return session, nil
}

func (s *AuthService) closeAll(ctx context.Context, userID, reason string, at time.Time) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID, reason, at)
	if err != nil {
		s.logger.Error("failed to revoke sessions", zap.String("user_id", userID), zap.String("reason", reason), zap.Error(err))
		return
	}
	s.logger.Warn("sessions revoked", zap.String("user_id", userID), zap.String("reason", reason), zap.Int64("count", n))
}

func (s *AuthService) open(ctx context.Context, user *models.User, ip, userAgent string) (*models.TokenPair, error) {
	now := s.now()
	access, err := s.sign(user, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign access token")
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to generate refresh token")
	}
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Internal(err, "failed to persist session")
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.config.AccessTokenExpiry / time.Second),
		IssuedAt:     now,
		User:         user.Info(),
	}, nil
}

func (s *AuthService) sign(user *models.User, at time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID:     user.ID,
		Role:       user.Role,
		Email:      user.Email,
		FullName:   user.FullName,
		Department: deref(user.Department),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(at),
			NotBefore: jwt.NewNumericDate(at),
			ExpiresAt: jwt.NewNumericDate(at.Add(s.config.AccessTokenExpiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashToken is the lookup key stored for a refresh token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
