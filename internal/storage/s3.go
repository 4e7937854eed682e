// Package storage issues presigned S3 uploads for note covers and project
// attachments. Clients PUT the file straight to the bucket and store the
// returned public URL on the note or project.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const DefaultExpiry = 15 * time.Minute

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

// Enabled reports whether a bucket was configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type Upload struct {
	UploadURL string    `json:"upload_url"`
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PresignRequest struct {
	Filename    string `json:"filename" validate:"required,max=200"`
	ContentType string `json:"content_type" validate:"max=100"`
}

type Presigner struct {
	client    *s3.PresignClient
	bucket    string
	publicURL string
	expiry    time.Duration
	now       func() time.Time
}

func NewPresigner(ctx context.Context, cfg Config) (*Presigner, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Presigner{
		client:    s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		publicURL: publicBase(cfg),
		expiry:    DefaultExpiry,
		now:       time.Now,
	}, nil
}

// publicBase is where uploaded objects can be read from.
func publicBase(cfg Config) string {
	switch {
	case cfg.PublicURL != "":
		return strings.TrimRight(cfg.PublicURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// Key places each upload under the user's prefix with a random name that
// keeps the original extension.
func Key(userID, filename string, at time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("uploads/%s/%d/%02d/%s%s", userID, at.Year(), at.Month(), uuid.NewString(), ext)
}

func (p *Presigner) PresignUpload(ctx context.Context, userID string, req *PresignRequest) (*Upload, error) {
	now := p.now()
	key := Key(userID, req.Filename, now)

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	signed, err := p.client.PresignPutObject(ctx, input, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &Upload{
		UploadURL: signed.URL,
		URL:       p.publicURL + "/" + key,
		Key:       key,
		ExpiresAt: now.Add(p.expiry),
	}, nil
}
