package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/searchandrescuegg/medilocator/internal/ml"
)

const transcriptKeyFormat = "emergencies/%s/%s.json"

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Client struct {
	client  objectPutter
	bucket  string
	timeout time.Duration
}

// NewS3Client builds a client for bucket. A non-empty endpoint switches to path-style
// addressing against that endpoint (MinIO, versitygw); static keys are used when both are set.
func NewS3Client(ctx context.Context, accessKey, secretKey, endpoint, region, bucket string, timeout time.Duration) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:  client,
		bucket:  bucket,
		timeout: timeout,
	}, nil
}

// Transcript is the archived record of the conversation that led to a dispatch.
type Transcript struct {
	EmergencyID      string              `json:"emergency_id"`
	UserID           string              `json:"user_id"`
	EmergencyDetails ml.EmergencyDetails `json:"emergency_details"`
	Turns            []ml.ChatTurn       `json:"turns"`
	DispatchedAt     time.Time           `json:"dispatched_at"`
}

func TranscriptKey(userID, emergencyID string) string {
	return fmt.Sprintf(transcriptKeyFormat, userID, emergencyID)
}

// ArchiveTranscript uploads the transcript and returns its object key.
func (c *S3Client) ArchiveTranscript(ctx context.Context, transcript *Transcript) (string, error) {
	body, err := json.Marshal(transcript)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	key := TranscriptKey(transcript.UserID, transcript.EmergencyID)
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object to S3: %w", err)
	}

	return key, nil
}
