// Package archive stores patient exports in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/config"
)

// Putter is the subset of the S3 client the archiver needs.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Archiver struct {
	client Putter
	bucket string
	prefix string
	now    func() time.Time
}

// New loads credentials from the default AWS chain. Endpoint points the
// client at MinIO or LocalStack when set.
func New(ctx context.Context, cfg config.ExportConfig) (*Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	opts := s3.Options{
		Region:       awsCfg.Region,
		Credentials:  awsCfg.Credentials,
		HTTPClient:   awsCfg.HTTPClient,
		BaseEndpoint: awsCfg.BaseEndpoint,
		UsePathStyle: true,
	}
	if cfg.Region != "" {
		opts.Region = cfg.Region
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return NewWithClient(s3.New(opts), cfg.Bucket, cfg.Prefix), nil
}

func NewWithClient(client Putter, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Put uploads a CSV export and returns the object key.
func (a *Archiver) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(a.prefix, a.now().UTC().Format("2006/01/02"), name)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("archive.Put %s: %w", key, err)
	}
	return key, nil
}

func (a *Archiver) Bucket() string {
	return a.bucket
}
