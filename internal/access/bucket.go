/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package access

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// WritableBucket is the authenticated bucket API the check uses.
type WritableBucket interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// ReadableBucket is the anonymous bucket API the check uses.
type ReadableBucket interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

var (
	_ WritableBucket = (*minio.Client)(nil)
	_ ReadableBucket = (*minio.Client)(nil)
)

// CheckBucket makes sure the bucket exists, can be written with the profile
// credentials, and that what is written there is publicly readable.
func CheckBucket(ctx context.Context, bucket WritableBucket, anon ReadableBucket, name string) error {
	if name == "" {
		return fmt.Errorf("no s3.bucket_name set for profile")
	}

	exists, err := bucket.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("could not check bucket %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", name)
	}

	key := "assets/.beavercds-access-check-" + uuid.NewString()
	body := "beavercds access check\n"
	if _, err := bucket.PutObject(ctx, name, key, strings.NewReader(body), int64(len(body)), minio.PutObjectOptions{ContentType: "text/plain"}); err != nil {
		return fmt.Errorf("cannot write to bucket %s: %w", name, err)
	}
	defer func() {
		_ = bucket.RemoveObject(context.WithoutCancel(ctx), name, key, minio.RemoveObjectOptions{})
	}()

	if _, err := anon.StatObject(ctx, name, key, minio.StatObjectOptions{}); err != nil {
		return fmt.Errorf("assets in bucket %s are not publicly readable: %w", name, err)
	}
	return nil
}
