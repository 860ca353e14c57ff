package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/storage"
)

type attachmentRepoStub struct {
	byID map[string]models.Attachment
}

func (r *attachmentRepoStub) Create(ctx context.Context, attachment *models.Attachment) error {
	r.byID[attachment.ID] = *attachment
	return nil
}

func (r *attachmentRepoStub) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (r *attachmentRepoStub) ListByComplaint(ctx context.Context, complaintID string) ([]models.Attachment, error) {
	var out []models.Attachment
	for _, a := range r.byID {
		if a.ComplaintID != nil && *a.ComplaintID == complaintID {
			out = append(out, a)
		}
	}
	return out, nil
}

const testFilesBaseURL = "http://localhost:8080/api/v1/files"

func newAttachmentService(t *testing.T) (*AttachmentService, *attachmentRepoStub) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := &attachmentRepoStub{byID: map[string]models.Attachment{}}
	svc := NewAttachmentService(repo, files, storage.NewSignedURLSigner("test-secret", time.Hour), AttachmentConfig{
		PublicBaseURL:    testFilesBaseURL,
		MaxFileSizeBytes: 16,
		AllowedMIMEs:     []string{"image/jpeg", "application/pdf"},
	}, nil)
	return svc, repo
}

func TestUploadStoresAndSignsAttachment(t *testing.T) {
	svc, repo := newAttachmentService(t)
	complaintID := "c-1"

	stored, err := svc.Upload(context.Background(), reporterID, &complaintID, []UploadedFile{
		{Name: "../../etc/Photo.JPG", ContentType: "image/jpeg; charset=binary", Content: strings.NewReader("jpeg-bytes")},
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	a := stored[0]
	assert.Equal(t, "Photo.JPG", a.OriginalName)
	assert.Equal(t, "image/jpeg", a.MimeType)
	assert.Equal(t, int64(10), a.SizeBytes)
	assert.True(t, strings.HasSuffix(a.StoragePath, ".jpg"))
	assert.True(t, strings.HasPrefix(a.DownloadURL, testFilesBaseURL+"/"))
	assert.Contains(t, repo.byID, a.ID)

	token := strings.TrimPrefix(a.DownloadURL, testFilesBaseURL+"/")
	meta, reader, err := svc.Open(context.Background(), token)
	require.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(content))
	assert.Equal(t, a.ID, meta.ID)

	listed, err := svc.ListByComplaint(context.Background(), complaintID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.NotEmpty(t, listed[0].DownloadURL)
}

func TestUploadRejectsDisallowedAndOversizedFiles(t *testing.T) {
	svc, repo := newAttachmentService(t)

	_, err := svc.Upload(context.Background(), reporterID, nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	_, err = svc.Upload(context.Background(), reporterID, nil, []UploadedFile{{Name: "run.sh", ContentType: "text/x-sh", Content: strings.NewReader("#!")}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnsupportedMedia.Code, errorCode(err))

	_, err = svc.Upload(context.Background(), reporterID, nil, []UploadedFile{{Name: "big.pdf", ContentType: "application/pdf", Content: strings.NewReader(strings.Repeat("x", 17))}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, errorCode(err))
	assert.Empty(t, repo.byID)
}

func TestOpenRejectsBadTokens(t *testing.T) {
	svc, _ := newAttachmentService(t)

	_, _, err := svc.Open(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	other := storage.NewSignedURLSigner("test-secret", time.Hour)
	token, _, err := other.Sign("missing", "2024/03/missing.jpg")
	require.NoError(t, err)
	_, _, err = svc.Open(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))
}
