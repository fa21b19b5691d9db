/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package deploy

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/osusec/beavercds-ng/internal/builder"
	"github.com/osusec/beavercds-ng/internal/config"
)

// Bucket is the object store API used for uploads. *minio.Client satisfies it.
type Bucket interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	EndpointURL() *url.URL
}

var _ Bucket = (*minio.Client)(nil)

type S3DeployResult struct {
	URLs []string
}

// Publisher uploads challenge assets to one bucket.
type Publisher struct {
	Bucket Bucket
	Name   string
}

func NewPublisher(bucket Bucket, s3 config.S3Config) *Publisher {
	return &Publisher{Bucket: bucket, Name: s3.BucketName}
}

// AssetKey is the bucket key for an asset file of chal.
func AssetKey(chal *config.ChallengeConfig, asset string) string {
	return path.Join("assets", chal.Slug(), filepath.Base(asset))
}

// PublicURL is the path-style URL of key in the bucket.
func (p *Publisher) PublicURL(key string) string {
	u := *p.Bucket.EndpointURL()
	u.Path = path.Join("/", u.Path, p.Name, key)
	return u.String()
}

// UploadChallengeAssets uploads every asset of a build concurrently and
// returns their public URLs in asset order.
func (p *Publisher) UploadChallengeAssets(ctx context.Context, chal *config.ChallengeConfig, build builder.BuildResult) (*S3DeployResult, error) {
	urls := make([]string, len(build.Assets))

	g, ctx := errgroup.WithContext(ctx)
	for i, asset := range build.Assets {
		g.Go(func() error {
			key := AssetKey(chal, asset)
			log.WithFields(log.Fields{"challenge": chal.Directory, "key": key}).Debug("uploading asset")

			if _, err := p.Bucket.FPutObject(ctx, p.Name, key, asset, minio.PutObjectOptions{}); err != nil {
				return fmt.Errorf("failed to upload file %s: %w", filepath.Base(asset), err)
			}
			urls[i] = p.PublicURL(key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to upload assets for %s: %w", chal.Directory, err)
	}

	return &S3DeployResult{URLs: urls}, nil
}

// NewBucket connects to the profile's object store with its credentials.
func NewBucket(s3 config.S3Config) (*minio.Client, error) {
	return newBucket(s3, credentials.NewStaticV4(s3.AccessKey, s3.SecretKey, ""))
}

// NewAnonymousBucket connects without credentials, to check what players can
// see.
func NewAnonymousBucket(s3 config.S3Config) (*minio.Client, error) {
	return newBucket(s3, credentials.NewStatic("", "", "", credentials.SignatureAnonymous))
}

func newBucket(s3 config.S3Config, creds *credentials.Credentials) (*minio.Client, error) {
	host, secure, err := splitEndpoint(s3.Endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       s3.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create bucket client for %s: %w", s3.Endpoint, err)
	}
	return client, nil
}

// splitEndpoint accepts a bare host or a URL, defaulting to https.
func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid s3 endpoint %q: %w", endpoint, err)
	}
	return u.Host, u.Scheme != "http", nil
}
