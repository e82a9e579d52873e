// Package archive uploads generated exports to S3-compatible storage and
// records them, so users can retrieve past reports.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"

	"github.com/unbuiltapp/unbuilt/internal/model"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Enabled reports whether the configuration is complete enough to upload.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Manager struct {
	cfg      Config
	client   s3Client
	archives *store.ArchiveStore
	logger   *slog.Logger
}

func NewManager(cfg Config, archives *store.ArchiveStore, logger *slog.Logger) *Manager {
	m := &Manager{cfg: cfg, archives: archives, logger: logger}
	if cfg.Enabled() {
		m.client = newS3Client(cfg)
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether uploads are active.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Store uploads the export body and records it for the user. Transient upload
// failures are retried with backoff; a manager without S3 configured is a
// no-op that returns nil.
func (m *Manager) Store(ctx context.Context, userID int64, format, filename string, body []byte) (*model.ExportArchive, error) {
	if m.client == nil {
		return nil, nil
	}

	s3Key := fmt.Sprintf("%d/%s", userID, filename)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(m.cfg.Bucket),
			Key:           aws.String(s3Key),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload export to s3: %w", err)
	}

	record, err := m.archives.Create(userID, format, filename, s3Key, int64(len(body)))
	if err != nil {
		return nil, err
	}

	m.logger.Info("export archived", "user_id", userID, "key", s3Key, "bytes", len(body))
	return record, nil
}
