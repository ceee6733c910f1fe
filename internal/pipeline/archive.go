package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Archiver writes compiled protocols to S3 as JSON blobs. If no bucket is
// configured all operations are no-ops, so the pipeline runs identically
// in environments without object storage.
type Archiver struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewArchiver creates an Archiver. An empty bucket disables archival.
func NewArchiver(s3Client S3API, bucket string, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled reports whether archival is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// Archive writes the protocol under a date-partitioned key.
func (a *Archiver) Archive(ctx context.Context, p *Protocol) error {
	if !a.Enabled() || p == nil {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("pipeline: marshal protocol archive: %w", err)
	}

	key := archiveKey(p)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("pipeline: s3 put %s: %w", key, err)
	}
	a.logger.Info("protocol archived", "key", key, "protocol_id", p.ID)
	return nil
}

// Fetch reads a previously archived protocol back from S3.
func (a *Archiver) Fetch(ctx context.Context, p *Protocol) (*Protocol, error) {
	if !a.Enabled() || p == nil {
		return nil, nil
	}

	key := archiveKey(p)
	out, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read archive body: %w", err)
	}
	var archived Protocol
	if err := json.Unmarshal(data, &archived); err != nil {
		return nil, fmt.Errorf("pipeline: decode archived protocol: %w", err)
	}
	return &archived, nil
}

func archiveKey(p *Protocol) string {
	t := p.GeneratedAt
	return fmt.Sprintf("protocols/v1/by-date/%d/%02d/%02d/%s.json",
		t.Year(), t.Month(), t.Day(), p.ID)
}
