package archive

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of *s3.Client the store uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	Client    PutObjectAPI
	Bucket    string
	KeyPrefix string
}

// S3Store uploads images to a bucket. The image SHA-256 travels as object
// metadata so the copy can be checked without downloading it.
type S3Store struct {
	client    PutObjectAPI
	bucket    string
	keyPrefix string
}

func NewS3Store(ctx context.Context, config S3StoreConfig) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if config.Client == nil {
		return nil, fmt.Errorf("S3 archive store: client is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("S3 archive store: bucket is required")
	}

	return &S3Store{
		client:    config.Client,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return path.Join(s.keyPrefix, key)
}

// Put hashes the image, then uploads it in a single PutObject.
func (s *S3Store) Put(ctx context.Context, key, imagePath string) (Receipt, error) {
	size, sum, err := hashFile(ctx, imagePath)
	if err != nil {
		return Receipt{}, err
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	objectKey := s.objectKey(key)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"sha256": sum,
		},
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to upload image to S3: %w", err)
	}

	return Receipt{
		Key:      key,
		Size:     size,
		SHA256:   sum,
		Location: fmt.Sprintf("s3://%s/%s", s.bucket, objectKey),
	}, nil
}
