// Package s3 implements a Store that archives captured messages to an
// S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shineum/haxmail/internal/mail"
)

// Config holds the configuration for creating an S3 Store.
type Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// PutObjectAPI is the subset of the S3 client used by Store.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Store writes one object per message. The body is stored as-is and the
// envelope travels in object metadata.
type Store struct {
	bucket string
	prefix string
	client PutObjectAPI
}

// New creates an S3 Store. Static credentials are used when both keys are
// set; otherwise the default AWS credential chain applies. A non-empty
// Endpoint selects path-style addressing for S3-compatible servers.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		// One attempt per message; a failed upload is reported, not repeated.
		awsconfig.WithRetryMaxAttempts(1),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(cfg.Bucket, cfg.Prefix, client), nil
}

// NewWithClient creates a Store with a custom client.
func NewWithClient(bucket, prefix string, client PutObjectAPI) *Store {
	return &Store{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		client: client,
	}
}

// Store uploads the message body under a date-partitioned key.
func (s *Store) Store(ctx context.Context, rec *mail.Record) error {
	key := objectKey(s.prefix, rec)

	input := &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(rec.Message.Body),
		ContentType: aws.String("message/rfc822"),
		Metadata:    metadata(rec),
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Name returns the backend name.
func (s *Store) Name() string {
	return "s3"
}

// objectKey returns <prefix>/YYYY/MM/DD/<id>.eml using the UTC capture date.
func objectKey(prefix string, rec *mail.Record) string {
	day := rec.ReceivedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, day, rec.ID.String()+".eml")
}

// metadata carries the envelope, since the body alone does not record it.
// Peer-supplied values are RFC 2047 encoded so they are always valid
// header text.
func metadata(rec *mail.Record) map[string]string {
	md := map[string]string{
		"sender":      headerSafe(rec.Message.Sender),
		"recipients":  headerSafe(strings.Join(rec.Message.Recipients, ", ")),
		"received-at": rec.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"partial":     strconv.FormatBool(rec.Partial),
	}
	if rec.Summary.Subject != "" {
		md["subject"] = headerSafe(rec.Summary.Subject)
	}
	return md
}

// headerSafe returns printable ASCII unchanged and Q-encodes anything
// else, including control characters such as CR and LF.
func headerSafe(v string) string {
	return mime.QEncoding.Encode("utf-8", v)
}
