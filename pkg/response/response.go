// Package response writes the JSON envelope every API route returns:
//
//	{"data": ..., "pagination": {...}, "meta": {...}}
//	{"error": {"code": "...", "message": "...", "status": 400}, "meta": {"request_id": "..."}}
package response

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/middleware/requestid"
)

type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON writes a success envelope. Only the first meta map is used.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	env := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && len(meta[0]) > 0 {
		env.Meta = meta[0]
	}
	private(c)
	c.JSON(status, env)
}

func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error maps err onto its status and code. Anything that is not an *appErrors.Error becomes a 500
// whose cause is attached to the gin context for the request logger, never to the body.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	env := Envelope{Error: appErr}
	if id := requestid.Value(c); id != "" {
		env.Meta = map[string]interface{}{"request_id": id}
	}
	private(c)
	c.JSON(appErr.Status, env)
}

// File sends a generated document as a download.
func File(c *gin.Context, filename, contentType string, data []byte) {
	private(c)
	c.Header("Content-Disposition", disposition("attachment", filename))
	c.Data(http.StatusOK, contentType, data)
}

// Stream copies size bytes from r to the client, shown inline by browsers that can render the type.
// Stream does not close r.
func Stream(c *gin.Context, filename, contentType string, size int64, r io.Reader, maxAge int) {
	c.DataFromReader(http.StatusOK, size, contentType, r, map[string]string{
		"Content-Disposition":    disposition("inline", filename),
		"Cache-Control":          "private, max-age=" + strconv.Itoa(maxAge),
		"X-Content-Type-Options": "nosniff",
	})
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func private(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// disposition encodes filename per RFC 6266, falling back to a bare type when it cannot.
func disposition(kind, filename string) string {
	if filename == "" {
		return kind
	}
	if v := mime.FormatMediaType(kind, map[string]string{"filename": filename}); v != "" {
		return v
	}
	return kind
}
