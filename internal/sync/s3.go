package sync

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an S3Destination. Key may contain {date} and {time}
// placeholders, expanded in UTC at each write, to keep a series of exports
// instead of overwriting one object.
type S3Options struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string // MinIO and other S3-compatible stores; enables path-style
}

// S3Destination uploads snapshot exports to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
	now    func() time.Time
}

// NewS3Destination creates an S3 destination using the default AWS
// credential chain.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 destination: bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{
		client: client,
		bucket: opts.Bucket,
		key:    opts.Key,
		now:    time.Now,
	}, nil
}

// Name identifies the destination in logs.
func (d *S3Destination) Name() string {
	return "s3://" + d.bucket + "/" + d.key
}

// objectKey expands the key template for t.
func (d *S3Destination) objectKey(t time.Time) string {
	t = t.UTC()
	return strings.NewReplacer(
		"{date}", t.Format("2006-01-02"),
		"{time}", t.Format("20060102T150405Z"),
	).Replace(d.key)
}

// Write uploads data as one JSONL object.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	key := d.objectKey(d.now())
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/x-ndjson"),
		Metadata:      map[string]string{"exporter": "livetimeline"},
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}
