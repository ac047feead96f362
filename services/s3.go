package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"videoconverter/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ArtifactArchive keeps a copy of converted files outside the output directory.
type ArtifactArchive interface {
	Archive(ctx context.Context, localPath string) (string, error)
}

// S3Service uploads converted MP4 files to a bucket.
type S3Service struct {
	session  *session.Session
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

// NewS3Service builds the uploader. httpClient may be nil to use the SDK default.
func NewS3Service(cfg *config.Config, httpClient *http.Client) (*S3Service, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSS3AccessKey,
			cfg.AWSS3SecretKey,
			"",
		),
	}

	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.S3UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	if httpClient != nil {
		awsCfg.HTTPClient = httpClient
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	return &S3Service{
		session:  sess,
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Key returns the object key used for a local artifact.
func (s *S3Service) Key(localPath string) string {
	prefix := strings.TrimLeft(s.prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + filepath.Base(localPath)
}

// Archive uploads the file and returns its object key.
func (s *S3Service) Archive(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := s.Key(localPath)
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return key, nil
}
