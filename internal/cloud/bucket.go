// Package cloud syncs column-store files to blob storage after a run.
package cloud

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/s3blob"
)

// OpenBucket opens 'provider://name' blob storage. Accepted providers are
// "s3" and, mostly for tests, "file".
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cloud: parse bucket %q: %w", bucketName, err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.OpenBucket(u.Path, nil)
	case "s3", "":
		return s3Bucket(ctx, u.Hostname()+u.Path)
	default:
		return nil, fmt.Errorf("cloud: unsupported provider %q", u.Scheme)
	}
}

// s3Bucket opens an S3 bucket using the AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY environment variables.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("cloud: aws session: %w", err)
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}

// SyncDirectory uploads every regular file under dir to the bucket, keyed by
// prefix + the path relative to dir.
func SyncDirectory(ctx context.Context, bucket *blob.Bucket, dir, prefix string, logger *slog.Logger) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(filepath.Join(prefix, rel))

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cloud: read %s: %w", path, err)
		}
		if err := bucket.WriteAll(ctx, key, data, nil); err != nil {
			return fmt.Errorf("cloud: upload %s: %w", key, err)
		}
		logger.Debug("uploaded", "key", key, "bytes", len(data))
		return nil
	})
}
