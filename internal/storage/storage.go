// Package storage reads and writes dataset and report files on local disk or S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

const s3Scheme = "s3://"

// MissingFileError reports that a required input path does not exist.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("missing required file: %s", e.Path)
}

// Config configures the S3 backend. Local paths need no configuration.
type Config struct {
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"` // MinIO or other S3-compatible endpoint
}

// Store dispatches on the path: "s3://bucket/key" goes to S3, anything else to the local disk.
type Store struct {
	cfg    Config
	logger *zap.Logger

	once     sync.Once
	s3Client *s3.Client
	s3Err    error
}

// New creates a Store. The S3 client is created on first use.
func New(cfg Config, logger *zap.Logger) *Store {
	return &Store{cfg: cfg, logger: logger}
}

// IsS3 reports whether path addresses an S3 object.
func IsS3(path string) bool {
	return strings.HasPrefix(path, s3Scheme)
}

// SplitS3 splits "s3://bucket/key" into bucket and key.
func SplitS3(path string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(path, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 path %q, expected s3://bucket/key", path)
	}
	return bucket, key, nil
}

// Exists reports whether path can be read.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	if !IsS3(path) {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	}

	client, err := s.client(ctx)
	if err != nil {
		return false, err
	}
	bucket, key, err := SplitS3(path)
	if err != nil {
		return false, err
	}
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", path, err)
	}
	return true, nil
}

// Read returns the full contents of path. A missing path yields *MissingFileError.
func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	if !IsS3(path) {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingFileError{Path: path}
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	bucket, key, err := SplitS3(path)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &MissingFileError{Path: path}
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces path with data, creating parent directories for local paths.
func (s *Store) Write(ctx context.Context, path string, data []byte) error {
	if !IsS3(path) {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create directory for %s: %w", path, err)
			}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}

	client, err := s.client(ctx)
	if err != nil {
		return err
	}
	bucket, key, err := SplitS3(path)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	s.logger.Debug("Uploaded object", zap.String("bucket", bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

func (s *Store) client(ctx context.Context) (*s3.Client, error) {
	s.once.Do(func() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.S3Region))
		if err != nil {
			s.s3Err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}

		opts := []func(*s3.Options){}
		if s.cfg.S3Endpoint != "" {
			endpoint := s.cfg.S3Endpoint
			opts = append(opts, func(o *s3.Options) {
				o.BaseEndpoint = &endpoint
				o.UsePathStyle = true
			})
		}
		s.s3Client = s3.NewFromConfig(awsCfg, opts...)
		s.logger.Info("S3 client initialized",
			zap.String("region", s.cfg.S3Region),
			zap.String("endpoint", s.cfg.S3Endpoint))
	})
	return s.s3Client, s.s3Err
}
