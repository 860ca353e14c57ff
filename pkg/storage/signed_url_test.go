package storage

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("att-1", "2024/05/photo.jpg")
	require.NoError(t, err)

	grant, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "att-1", grant.AttachmentID)
	assert.Equal(t, "2024/05/photo.jpg", grant.Path)
	assert.True(t, expiresAt.Equal(grant.ExpiresAt))

	assert.Equal(t, "https://cdn.example.edu/files/"+token, signer.URL("https://cdn.example.edu/files/", token))
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return base }

	token, _, err := signer.Sign("att-1", "a/b.png")
	require.NoError(t, err)

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrLinkExpired)
}

func TestSignedURLRejectsForgeries(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)

	_, err := signer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrLinkInvalid)

	foreign, _, err := NewSignedURLSigner("other", time.Hour).Sign("att-1", "a/b.png")
	require.NoError(t, err)
	_, err = signer.Verify(foreign)
	assert.ErrorIs(t, err, ErrLinkInvalid)

	// A session token signed with the same secret is not a download link.
	wrongAudience, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "att-1",
		Audience:  jwt.ClaimStrings{"api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = signer.Verify(wrongAudience)
	assert.ErrorIs(t, err, ErrLinkInvalid)
}

func TestSignedURLRequiresSecretAndInputs(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Sign("att-1", "a/b.png")
	assert.Error(t, err)
	_, _, err = NewSignedURLSigner("secret", time.Hour).Sign("", "a/b.png")
	assert.Error(t, err)
}
