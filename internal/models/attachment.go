package models

import (
	"strings"
	"time"
)

// Attachment is a file uploaded for a complaint. ComplaintID is nil until linked.
type Attachment struct {
	ID           string    `db:"id" json:"id"`
	ComplaintID  *string   `db:"complaint_id" json:"complaint_id,omitempty"`
	UploadedBy   string    `db:"uploaded_by" json:"uploaded_by"`
	OriginalName string    `db:"original_name" json:"original_name"`
	StoragePath  string    `db:"storage_path" json:"-"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`

	DownloadURL string `db:"-" json:"download_url,omitempty"`
}

// IsImage reports whether the attachment can be sent to the classifier.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.MimeType), "image/")
}
