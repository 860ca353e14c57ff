package handler

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/pkg/response"
)

// Browsers may reuse a fetched attachment for this many seconds.
const downloadMaxAge = 300

type attachmentOpener interface {
	Open(ctx context.Context, token string) (*models.Attachment, io.ReadCloser, error)
}

// FileHandler serves attachment content behind signed links.
type FileHandler struct {
	files attachmentOpener
}

// NewFileHandler builds the handler.
func NewFileHandler(files attachmentOpener) *FileHandler {
	return &FileHandler{files: files}
}

// Download godoc
// @Summary Download an attachment
// @Description The token is issued in attachment download_url fields and expires
// @Tags Attachments
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	attachment, reader, err := h.files.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close() //nolint:errcheck

	response.Stream(c, attachment.OriginalName, attachment.MimeType, attachment.SizeBytes, reader, downloadMaxAge)
}
