package model

import "time"

// ExportArchive records an export that was uploaded to the S3 archive.
type ExportArchive struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Format    string    `json:"format"`
	Filename  string    `json:"filename"`
	S3Key     string    `json:"s3_key"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
