package network

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
)

// S3Config ...
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint points the client at an S3 compatible service. Path style addressing is used when set.
	Endpoint string
}

// S3Transport uploads a file with a single PutObject request. Request.URL is the object key
// prefix, or an s3://bucket/prefix URL overriding the configured bucket.
// The client never retries; every Send is exactly one request.
type S3Transport struct {
	client *s3.Client
	bucket string
	logger log.Logger
}

// NewS3Transport ...
func NewS3Transport(ctx context.Context, params S3Config, logger log.Logger) (*S3Transport, error) {
	if logger == nil {
		logger = log.NewLogger()
	}

	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		o.Retryer = aws.NopRetryer{}
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Transport{
		client: client,
		bucket: params.Bucket,
		logger: logger,
	}, nil
}

// Send ...
func (t *S3Transport) Send(ctx context.Context, req Request, onProgress ProgressFunc) Outcome {
	if req.File == nil {
		return NetworkErrorOutcome(fmt.Errorf("no file to send"))
	}

	bucket, prefix := t.location(req.URL)
	key := objectKey(prefix, req)

	t.logger.Debugf("Uploading to s3://%s/%s", bucket, key)

	// The payload is streamed once; hashing it for the signature would read the whole file before sending.
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Body:          newProgressReader(req.File, onProgress),
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(DetectContentType(req.File)),
		ContentLength: aws.Int64(req.File.Size()),
		Metadata:      req.Fields,
	}, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return s3Outcome(err)
	}

	return SuccessOutcome(200, fmt.Sprintf("s3://%s/%s", bucket, key))
}

func (t *S3Transport) location(target string) (string, string) {
	if u, err := url.Parse(target); err == nil && u.Scheme == "s3" {
		return u.Host, strings.TrimPrefix(u.Path, "/")
	}
	return t.bucket, target
}

func s3Outcome(err error) Outcome {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) {
		return NetworkErrorOutcome(err)
	}

	body := respErr.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		body = fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return FailureOutcome(respErr.HTTPStatusCode(), body)
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
