package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client the sync engine uses.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sync performs a one-way, diff-based sync of a local directory to an S3
// prefix: objects that are missing remotely, differ in size, or are locally
// newer are uploaded. Remote objects absent locally are left alone.
type S3Sync struct {
	client S3API
	bucket string
	dryRun bool
}

// S3SyncOption configures an S3Sync.
type S3SyncOption func(*S3Sync)

// WithS3DryRun makes Sync compute the upload plan without uploading.
func WithS3DryRun(dryRun bool) S3SyncOption {
	return func(s *S3Sync) {
		s.dryRun = dryRun
	}
}

// NewS3Sync creates a sync engine targeting the given bucket.
func NewS3Sync(client S3API, bucket string, opts ...S3SyncOption) *S3Sync {
	s := &S3Sync{
		client: client,
		bucket: bucket,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type remoteObject struct {
	size         int64
	lastModified time.Time
}

// Sync uploads new and changed files under localDir to prefix in the bucket.
// It returns the keys that were uploaded (or would be, in dry-run mode).
func (s *S3Sync) Sync(ctx context.Context, localDir, prefix string) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	if err := s.checkBucket(ctx); err != nil {
		return nil, err
	}

	remote, err := s.listRemote(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var uploaded []string
	err = filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}

		if existing, ok := remote[key]; ok {
			if existing.size == info.Size() && !info.ModTime().After(existing.lastModified) {
				logger.Debug().Str("key", key).Msg("Object unchanged, skipping")
				return nil
			}
		}

		if s.dryRun {
			logger.Info().Str("key", key).Msg("Would upload object (dry run)")
			uploaded = append(uploaded, key)
			return nil
		}

		if err := s.upload(ctx, p, key); err != nil {
			return err
		}
		logger.Info().Str("key", key).Int64("size", info.Size()).Msg("Uploaded object")
		uploaded = append(uploaded, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sync %s to s3://%s/%s: %w", localDir, s.bucket, prefix, err)
	}

	logger.Info().
		Str("bucket", s.bucket).
		Str("prefix", prefix).
		Int("uploaded", len(uploaded)).
		Msg("Object sync complete")
	return uploaded, nil
}

func (s *S3Sync) checkBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket") {
			return fmt.Errorf("bucket %s does not exist: %w", s.bucket, err)
		}
		return fmt.Errorf("failed to access bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *S3Sync) listRemote(ctx context.Context, prefix string) (map[string]remoteObject, error) {
	remote := make(map[string]remoteObject)

	var continuationToken *string
	for {
		output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, prefix, err)
		}

		for _, obj := range output.Contents {
			if obj.Key == nil {
				continue
			}
			entry := remoteObject{}
			if obj.Size != nil {
				entry.size = *obj.Size
			}
			if obj.LastModified != nil {
				entry.lastModified = *obj.LastModified
			}
			remote[*obj.Key] = entry
		}

		if output.IsTruncated == nil || !*output.IsTruncated {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return remote, nil
}

func (s *S3Sync) upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// Glue job scripts are plain python; mime may not know .py
	if strings.HasSuffix(localPath, ".py") {
		contentType = "text/x-python"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
