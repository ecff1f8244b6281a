// Package storage archives finished session artifacts to an S3-compatible
// object store.
package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/oxlade/meetscribe/internal/config"
)

// S3Store uploads session artifacts to an S3-compatible object store.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Store creates an artifact store from config.
func NewS3Store(cfg config.S3Config, log zerolog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "s3-store").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (s *S3Store) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &s.bucket,
	})
	return err
}

// UploadArtifacts pushes the named files under <prefix>/<sessionName>/.
// Upload failures are logged per file; the session result on local disk is
// already safe.
func (s *S3Store) UploadArtifacts(ctx context.Context, sessionName string, files []string) {
	for _, f := range files {
		if err := s.uploadFile(ctx, sessionName, f); err != nil {
			s.log.Warn().Err(err).Str("file", f).Msg("artifact upload failed")
			continue
		}
		s.log.Info().Str("file", filepath.Base(f)).Msg("artifact uploaded")
	}
}

func (s *S3Store) uploadFile(ctx context.Context, sessionName, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := s.objectKey(sessionName, filepath.Base(path))
	ct := contentType(path)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        f,
		ContentType: &ct,
	})
	return err
}

func (s *S3Store) objectKey(sessionName, name string) string {
	if s.prefix != "" {
		return s.prefix + "/" + sessionName + "/" + name
	}
	return sessionName + "/" + name
}

func contentType(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".srt", ".vtt":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	case ".wav":
		return "audio/wav"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}
