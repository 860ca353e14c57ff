package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const linkAudience = "attachment-download"

var (
	// ErrLinkExpired is returned for a well-formed link past its expiry.
	ErrLinkExpired = errors.New("download link expired")
	// ErrLinkInvalid covers malformed, forged and foreign links.
	ErrLinkInvalid = errors.New("download link invalid")
)

// Grant is what a download link authorises: one stored object, addressed by attachment id and path.
type Grant struct {
	AttachmentID string
	Path         string
	ExpiresAt    time.Time
}

type linkClaims struct {
	Path string `json:"pth"`
	jwt.RegisteredClaims
}

// SignedURLSigner issues short-lived download links as HS256 tokens, so the file route stays public
// while the storage path cannot be guessed or swapped.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for attachmentID at path and the moment it stops working.
func (s *SignedURLSigner) Sign(attachmentID, path string) (string, time.Time, error) {
	if attachmentID == "" || path == "" {
		return "", time.Time{}, fmt.Errorf("sign link: attachment id and path are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("sign link: no secret configured")
	}
	now := s.now()
	expires := now.Add(s.ttl).Truncate(time.Second)
	claims := linkClaims{
		Path: path,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   attachmentID,
			Audience:  jwt.ClaimStrings{linkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign link: %w", err)
	}
	return token, expires, nil
}

// Verify checks the token signature, audience and expiry.
func (s *SignedURLSigner) Verify(token string) (*Grant, error) {
	claims := &linkClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(linkAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrLinkExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrLinkInvalid, err)
	case claims.Subject == "" || claims.Path == "":
		return nil, ErrLinkInvalid
	}
	return &Grant{AttachmentID: claims.Subject, Path: claims.Path, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// URL joins baseURL and token.
func (s *SignedURLSigner) URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(token)
}
