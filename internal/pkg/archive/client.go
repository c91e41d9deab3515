package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/outflo/outflo/app/models"
)

// ObjectPutter is the part of the S3 API the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client writes raw inbound payloads to object storage.
type Client struct {
	s3Client ObjectPutter
	config   *Config
}

// NewClient creates an archive client; it fails when the archive is disabled.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("payload archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	log.Infof("[Archive] Archiving raw payloads to bucket %s", cfg.BucketName)
	return NewClientWithPutter(s3Client, cfg), nil
}

// NewClientWithPutter wires an existing S3 API implementation.
func NewClientWithPutter(putter ObjectPutter, cfg *Config) *Client {
	return &Client{s3Client: putter, config: cfg}
}

// Archive stores the event's raw payload under its provider and receive month.
func (c *Client) Archive(ctx context.Context, event *models.InboundEvent) error {
	received := event.ReceivedAt.UTC()
	key := c.config.ObjectKey(event.Provider, event.EventID, received.Year(), int(received.Month()))

	body := []byte(event.Raw)
	if len(body) == 0 {
		body = []byte("{}")
	}

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"event-row-id": event.ID,
			"provider":     event.Provider,
		},
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", c.config.BucketName, key, err)
	}
	log.Debugf("[Archive] Stored s3://%s/%s", c.config.BucketName, key)
	return nil
}
