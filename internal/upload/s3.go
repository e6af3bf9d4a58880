package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/d60-Lab/gin-blog/config"
	"github.com/d60-Lab/gin-blog/pkg/logger"
)

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// S3 stores covers in an S3-compatible bucket (AWS, MinIO, R2).
type S3 struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3(ctx context.Context, cfg config.S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	baseURL := publicBaseURL(cfg)
	if !strings.HasPrefix(baseURL, "https://") {
		logger.Warn("s3 public base url is not https, covers will be served insecurely", zap.String("base_url", baseURL))
	}
	return &S3{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

func publicBaseURL(cfg config.S3Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// objectKey covers/yyyy/mm/dd/<uuid><ext>
func objectKey(mimeType string, now time.Time) string {
	ext := ""
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return fmt.Sprintf("covers/%04d/%02d/%02d/%s%s", now.Year(), now.Month(), now.Day(), uuid.NewString(), ext)
}

func (s *S3) Upload(ctx context.Context, data []byte, mimeType string) (img Image, err error) {
	key := objectKey(mimeType, time.Now().UTC())
	ctx, span := startSpan(ctx, "s3.put_object",
		attribute.String("s3.bucket", s.bucket), attribute.String("s3.key", key),
		attribute.String("image.mime", mimeType), attribute.Int("image.bytes", len(data)))
	defer func() { endSpan(span, err) }()

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		var re interface{ HTTPStatusCode() int }
		if errors.As(err, &re) {
			return Image{}, newUploadError(re.HTTPStatusCode(), err.Error(), err)
		}
		return Image{}, newUploadError(0, "", err)
	}
	return Image{URL: s.baseURL + "/" + key, Ref: key}, nil
}

func (s *S3) Delete(ctx context.Context, ref string) (err error) {
	ctx, span := startSpan(ctx, "s3.delete_object", attribute.String("s3.bucket", s.bucket), attribute.String("s3.key", ref))
	defer func() { endSpan(span, err) }()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	return err
}
