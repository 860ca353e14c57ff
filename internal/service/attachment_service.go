package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/storage"
)

type attachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	FindByID(ctx context.Context, id string) (*models.Attachment, error)
	ListByComplaint(ctx context.Context, complaintID string) ([]models.Attachment, error)
}

type fileStore interface {
	SaveStream(filename string, r io.Reader, maxBytes int64) (int64, error)
	ReadLimited(filename string, maxBytes int64) ([]byte, error)
	Open(filename string) (io.ReadCloser, error)
	Delete(filename string) error
}

type urlSigner interface {
	Sign(attachmentID, path string) (string, time.Time, error)
	Verify(token string) (*storage.Grant, error)
	URL(baseURL, token string) string
}

// UploadedFile is one incoming multipart file.
type UploadedFile struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// AttachmentConfig bounds uploads and points download links at the public file endpoint.
type AttachmentConfig struct {
	PublicBaseURL    string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// AttachmentService stores complaint files and hands out signed download links.
type AttachmentService struct {
	repo    attachmentRepository
	files   fileStore
	signer  urlSigner
	cfg     AttachmentConfig
	allowed map[string]struct{}
	logger  *zap.Logger
	now     func() time.Time
}

// NewAttachmentService constructs the service.
func NewAttachmentService(repo attachmentRepository, files fileStore, signer urlSigner, cfg AttachmentConfig, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, m := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &AttachmentService{
		repo:    repo,
		files:   files,
		signer:  signer,
		cfg:     cfg,
		allowed: allowed,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores files for uploaderID. A nil complaintID stages the files for linking at complaint creation.
func (s *AttachmentService) Upload(ctx context.Context, uploaderID string, complaintID *string, uploads []UploadedFile) ([]models.Attachment, error) {
	if len(uploads) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no files uploaded")
	}
	stored := make([]models.Attachment, 0, len(uploads))
	for _, upload := range uploads {
		attachment, err := s.store(ctx, uploaderID, complaintID, upload)
		if err != nil {
			return nil, err
		}
		stored = append(stored, *attachment)
	}
	return stored, nil
}

func (s *AttachmentService) store(ctx context.Context, uploaderID string, complaintID *string, upload UploadedFile) (*models.Attachment, error) {
	mimeType := normalizeMIME(upload.ContentType)
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[mimeType]; !ok {
			return nil, appErrors.Clonef(appErrors.ErrUnsupportedMedia, "file type %s is not allowed", mimeType)
		}
	}
	name := filepath.Base(strings.TrimSpace(upload.Name))
	if name == "." || name == "/" || name == "" {
		name = "attachment"
	}
	now := s.now()
	id := uuid.NewString()
	path := fmt.Sprintf("%04d/%02d/%s%s", now.Year(), int(now.Month()), id, strings.ToLower(filepath.Ext(name)))

	size, err := s.files.SaveStream(path, upload.Content, s.cfg.MaxFileSizeBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clonef(appErrors.ErrPayloadTooLarge, "file %s exceeds %d bytes", name, s.cfg.MaxFileSizeBytes)
		}
		return nil, appErrors.Internal(err, "failed to store attachment")
	}

	attachment := &models.Attachment{
		ID:           id,
		ComplaintID:  complaintID,
		UploadedBy:   uploaderID,
		OriginalName: name,
		StoragePath:  path,
		MimeType:     mimeType,
		SizeBytes:    size,
		CreatedAt:    now,
	}
	if err := s.repo.Create(ctx, attachment); err != nil {
		if delErr := s.files.Delete(path); delErr != nil {
			s.logger.Warn("failed to remove orphaned attachment file", zap.String("path", path), zap.Error(delErr))
		}
		return nil, appErrors.Internal(err, "failed to record attachment")
	}
	s.decorate(attachment)
	return attachment, nil
}

// ListByComplaint returns the complaint's attachments with download links.
func (s *AttachmentService) ListByComplaint(ctx context.Context, complaintID string) ([]models.Attachment, error) {
	attachments, err := s.repo.ListByComplaint(ctx, complaintID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attachments")
	}
	for i := range attachments {
		s.decorate(&attachments[i])
	}
	return attachments, nil
}

// PublicURL signs a download link for the attachment.
func (s *AttachmentService) PublicURL(attachment models.Attachment) (string, error) {
	token, _, err := s.signer.Sign(attachment.ID, attachment.StoragePath)
	if err != nil {
		return "", err
	}
	return s.signer.URL(s.cfg.PublicBaseURL, token), nil
}

// ReadLimited exposes inline reads of stored files for the classifier payload.
func (s *AttachmentService) ReadLimited(name string, maxBytes int64) ([]byte, error) {
	return s.files.ReadLimited(name, maxBytes)
}

// Open resolves a signed token into the attachment and a reader over its content.
func (s *AttachmentService) Open(ctx context.Context, token string) (*models.Attachment, io.ReadCloser, error) {
	grant, err := s.signer.Verify(token)
	if errors.Is(err, storage.ErrLinkExpired) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link has expired")
	}
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	path := grant.Path
	attachment, err := s.repo.FindByID(ctx, grant.AttachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to load attachment")
	}
	if attachment.StoragePath != path {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	reader, err := s.files.Open(path)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attachment content missing")
	}
	return attachment, reader, nil
}

func (s *AttachmentService) decorate(attachment *models.Attachment) {
	link, err := s.PublicURL(*attachment)
	if err != nil {
		s.logger.Warn("failed to sign attachment url", zap.String("attachment_id", attachment.ID), zap.Error(err))
		return
	}
	attachment.DownloadURL = link
}

func normalizeMIME(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil || mediaType == "" {
		return "application/octet-stream"
	}
	return strings.ToLower(mediaType)
}
