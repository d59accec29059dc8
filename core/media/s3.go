package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/model"
)

// S3Configuration contains the configuration of a S3 media storage
type S3Configuration struct {
	AccessID      string
	AccessKey     string
	AWSRegion     string
	AWSBucketName string
	// KeyPrefix is prepended to all keys, e.g. "movies/poster/"
	KeyPrefix string
	// SignedURLExpiry is the lifetime of generated download URLs, defaults to one hour
	SignedURLExpiry time.Duration
}

// S3 stores files in an AWS S3 bucket
type S3 struct {
	column  *model.Column
	client  *s3.Client
	bucket  string
	prefix  string
	expiry  time.Duration
	options Options
}

// NewS3 returns a new S3 storage for column
func NewS3(column *model.Column, s3Config S3Configuration, options Options) (*S3, error) {
	if column == nil {
		return nil, fmt.Errorf("S3 media storage requires a column")
	}
	if s3Config.AWSBucketName == "" {
		return nil, fmt.Errorf("AWSBucketName must not be empty")
	}
	loadOptions := []func(*config.LoadOptions) error{config.WithRegion(s3Config.AWSRegion)}
	if s3Config.AccessID != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3Config.AccessID, s3Config.AccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(context.TODO(), loadOptions...)
	if err != nil {
		return nil, err
	}
	return NewS3WithClient(column, s3.NewFromConfig(cfg), s3Config, options), nil
}

// NewS3WithClient returns a new S3 storage for column using an existing client
func NewS3WithClient(column *model.Column, client *s3.Client, s3Config S3Configuration, options Options) *S3 {
	expiry := s3Config.SignedURLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	logger.Default().Debugln("media S3 enabled for", column, "bucket", s3Config.AWSBucketName)
	return &S3{
		column:  column,
		client:  client,
		bucket:  s3Config.AWSBucketName,
		prefix:  s3Config.KeyPrefix,
		expiry:  expiry,
		options: options,
	}
}

// Column implements Storage
func (s *S3) Column() *model.Column {
	return s.column
}

// Location implements Storage
func (s *S3) Location() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

// StoreFile implements Storage
func (s *S3) StoreFile(ctx context.Context, fileName string, file io.Reader, auth *access.Authorization) (string, error) {
	key, err := GenerateFileKey(fileName, s.options)
	if err != nil {
		return "", err
	}
	uploader := manager.NewUploader(s.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file, %v", err)
	}
	logger.FromContext(ctx).Infof("uploaded media file '%s' for %s", s.prefix+key, s.column)
	return key, nil
}

// GenerateFileURL implements Storage. It returns a pre-signed GET URL.
func (s *S3) GenerateFileURL(ctx context.Context, key, rootURL string, auth *access.Authorization) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	client := s3.NewPresignClient(s.client)
	resp, err := client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// GetFile implements Storage
func (s *S3) GetFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// DeleteFile implements Storage
func (s *S3) DeleteFile(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	logger.FromContext(ctx).Infoln("Deleting ", s.prefix+key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		logger.FromContext(ctx).Error("Could not delete ", s.prefix+key)
	}
	return err
}
