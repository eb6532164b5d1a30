package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

const (
	defaultRegion = "us-west-2"
	// DeleteObjects accepts at most this many keys per call.
	deleteBatchSize = 1000
)

// NewSession builds an AWS session from static credentials.
func NewSession(opts S3Options) (*session.Session, error) {
	region := opts.Region
	if region == "" {
		region = defaultRegion
	}

	cfg := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(opts.ForcePathStyle),
	}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}

// S3Store is a Store scoped to a bucket and key prefix.
type S3Store struct {
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

func NewS3Store(sess *session.Session, bucket, prefix string) *S3Store {
	client := s3.New(sess)
	return NewS3StoreWithClient(client, s3manager.NewUploaderWithClient(client), bucket, prefix)
}

func NewS3StoreWithClient(client s3iface.S3API, uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (s *S3Store) key(key string) string {
	return joinKey(s.prefix, key)
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := s.client.ListObjectsPagesWithContext(ctx,
		&s3.ListObjectsInput{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(s.key(prefix)),
		},
		func(page *s3.ListObjectsOutput, lastPage bool) bool {
			for _, obj := range page.Contents {
				key := aws.StringValue(obj.Key)
				if strings.HasSuffix(key, "/") {
					continue
				}
				objects = append(objects, Object{
					Key:  strings.TrimPrefix(key, s.prefix),
					Size: aws.Int64Value(obj.Size),
				})
			}
			return !lastPage
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.key(prefix), err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Open streams the object body rather than buffering it.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.URI(key))
		}
		return nil, fmt.Errorf("failed to start download stream for %s: %w", s.URI(key), err)
	}
	return out.Body, nil
}

// Upload sends body through the multipart uploader and then verifies the
// object is visible with a HEAD request.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	fullKey := s.key(key)

	var meta map[string]*string
	if len(metadata) > 0 {
		meta = aws.StringMap(metadata)
	}

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(fullKey),
		Body:     body,
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 %s: %w", s.URI(key), err)
	}

	_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("upload verification failed for %s: %w", s.URI(key), err)
	}
	return nil
}

func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	if strings.Trim(s.key(prefix), "/") == "" {
		return fmt.Errorf("refusing to delete the whole bucket %s", s.bucket)
	}

	objects, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}

	for start := 0; start < len(objects); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(objects) {
			end = len(objects)
		}

		ids := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(s.key(obj.Key))})
		}

		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects under %s: %w", s.URI(prefix), err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects under %s, first %s: %s",
				len(out.Errors), s.URI(prefix), aws.StringValue(first.Key), aws.StringValue(first.Message))
		}
	}
	return nil
}

// CheckAccess uploads and removes a small test object.
func (s *S3Store) CheckAccess(ctx context.Context) error {
	testKey := s.key("connection-test.txt")

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(testKey),
		Body:   strings.NewReader("S3 connection test successful"),
	})
	if err != nil {
		return fmt.Errorf("S3 upload test failed: %w", err)
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrAccessTestCleanup, testKey, err)
	}
	return nil
}

func (s *S3Store) URI(key string) string {
	return "s3://" + s.bucket + "/" + s.key(key)
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
