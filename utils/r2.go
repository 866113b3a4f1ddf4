// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"duel-match-system/engine"
)

// ObjectPutter is the part of the S3 client the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Archiver writes the final view of a match to R2 once it leaves the
// in-memory retention window.
type R2Archiver struct {
	client ObjectPutter
	bucket string
}

func NewR2Archiver(ctx context.Context, accountID, accessKeyID, accessKeySecret, bucket string) (*R2Archiver, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID))
	})
	return NewArchiver(client, bucket), nil
}

func NewArchiver(client ObjectPutter, bucket string) *R2Archiver {
	return &R2Archiver{client: client, bucket: bucket}
}

var _ engine.Archiver = (*R2Archiver)(nil)

// ArchiveKey is matches/<yyyy>/<mm>/<dd>/<match id>.json, dated by creation
func ArchiveKey(v engine.View) string {
	return fmt.Sprintf("matches/%s/%s.json", v.CreatedAt.UTC().Format("2006/01/02"), v.ID)
}

func (a *R2Archiver) Archive(ctx context.Context, v engine.View) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode match %s: %w", v.ID, err)
	}

	key := ArchiveKey(v)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}
	log.Printf("📦 [Archive] match %s stored at %s", v.ID, key)
	return nil
}
