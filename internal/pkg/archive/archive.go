// Package archive copies raw webhook payloads to S3 compatible storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/config"
)

// ObjectPutter is the part of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver stores one JSON document per webhook event.
type S3Archiver struct {
	client ObjectPutter
	bucket string
}

// document is what lands in the bucket.
type document struct {
	ID            string          `json:"id"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId"`
	ReceivedAt    time.Time       `json:"receivedAt"`
	Verified      bool            `json:"signatureVerified"`
	Payload       json.RawMessage `json:"payload"`
}

// NewS3Archiver builds the AWS client from cfg. A custom endpoint switches
// to path-style addressing for S3 compatible providers.
func NewS3Archiver(ctx context.Context, cfg config.Archive) (*S3Archiver, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("S3 archive is disabled")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	log.Infof("[Archive] Webhook payloads will be archived to bucket %s", cfg.BucketName)
	return NewWithClient(client, cfg.BucketName), nil
}

// NewWithClient wires an existing client.
func NewWithClient(client ObjectPutter, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// ObjectKey returns webhooks/YYYY/MM/DD/<id>.json for the event.
func ObjectKey(event *models.WebhookEvent) string {
	t := event.ReceivedAt.UTC()
	return fmt.Sprintf("webhooks/%04d/%02d/%02d/%s.json", t.Year(), int(t.Month()), t.Day(), event.ID)
}

// Archive uploads the event document.
func (a *S3Archiver) Archive(ctx context.Context, event *models.WebhookEvent) error {
	body, err := json.Marshal(document{
		ID:            event.ID,
		Source:        event.Source,
		CorrelationID: event.CorrelationID,
		ReceivedAt:    event.ReceivedAt,
		Verified:      event.SignatureVerified,
		Payload:       event.PayloadDocument(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook document: %w", err)
	}

	key := ObjectKey(event)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"correlation-id": event.CorrelationID,
			"source":         event.Source,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload webhook %s to S3: %w", event.ID, err)
	}
	return nil
}
