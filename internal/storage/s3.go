package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Prefix = "profile_pics/"

// ObjectStore is the part of the S3 client the store needs
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures the bucket connection. Endpoint and static keys are
// optional, for MinIO and similar services.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base URL objects are reachable at
	PublicURL string
}

// S3Store uploads pictures to a bucket and returns their public URL
type S3Store struct {
	client    ObjectStore
	bucket    string
	publicURL string
}

// NewS3Client builds an S3 client from the default AWS config chain
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewS3Store(client ObjectStore, opts S3Options) *S3Store {
	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}
	return &S3Store{client: client, bucket: opts.Bucket, publicURL: publicURL}
}

// SavePicture processes the upload, puts it in the bucket and returns its URL
func (s *S3Store) SavePicture(ctx context.Context, filename string, data []byte) (string, error) {
	pic, err := ProcessPicture(filename, data)
	if err != nil {
		return "", err
	}

	key := s3Prefix + pic.Name
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pic.Data),
		ContentType: aws.String(pic.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("put picture: %w", err)
	}

	return s.publicURL + "/" + key, nil
}

// DeletePicture removes an object previously returned by SavePicture.
// References outside this store's bucket are ignored.
func (s *S3Store) DeletePicture(ctx context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, s.publicURL+"/")
	if !ok || !strings.HasPrefix(key, s3Prefix) {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete picture: %w", err)
	}
	return nil
}
