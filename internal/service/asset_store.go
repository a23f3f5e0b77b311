package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AssetStore persists generated media and hands back a time-limited URL for
// the client to fetch it.
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type s3AssetStore struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	urlExpiry     time.Duration
}

// NewS3AssetStore creates an AssetStore backed by an S3-compatible bucket.
func NewS3AssetStore(client *s3.Client, bucket string, urlExpiry time.Duration) AssetStore {
	return &s3AssetStore{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
		urlExpiry:     urlExpiry,
	}
}

func (s *s3AssetStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("store asset %s: %w", key, err)
	}
	presigned, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return "", fmt.Errorf("presign asset %s: %w", key, err)
	}
	return presigned.URL, nil
}
