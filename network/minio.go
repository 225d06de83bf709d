package network

import (
	"context"
	"fmt"
	"io"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig ...
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool

	// Region of the bucket. Setting it saves the bucket location lookup.
	// Default: us-east-1
	Region string
}

const defaultMinioRegion = "us-east-1"

// MinioTransport uploads a file as a single object to a MinIO (or other S3 compatible) server.
// Request.URL is the object key prefix. Every Send is exactly one PutObject request:
// the client neither retries nor splits the file into parts.
type MinioTransport struct {
	client *minio.Client
	bucket string
	logger log.Logger
}

// NewMinioTransport ...
func NewMinioTransport(params MinioConfig, logger log.Logger) (*MinioTransport, error) {
	if logger == nil {
		logger = log.NewLogger()
	}
	if params.Endpoint == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	region := params.Region
	if region == "" {
		region = defaultMinioRegion
	}

	client, err := minio.New(params.Endpoint, &minio.Options{
		Creds:      credentials.NewStaticV4(params.AccessKey, params.SecretKey, ""),
		Secure:     params.Secure,
		Region:     region,
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioTransport{
		client: client,
		bucket: params.Bucket,
		logger: logger,
	}, nil
}

// Send ...
func (t *MinioTransport) Send(ctx context.Context, req Request, onProgress ProgressFunc) Outcome {
	if req.File == nil {
		return NetworkErrorOutcome(fmt.Errorf("no file to send"))
	}

	key := objectKey(req.URL, req)
	size := req.File.Size()

	t.logger.Debugf("Uploading to %s/%s/%s", t.client.EndpointURL(), t.bucket, key)

	// One unsigned-payload PUT: hashing the payload for the signature would read the whole file before sending.
	info, err := t.client.PutObject(ctx, t.bucket, key, io.NewSectionReader(req.File, 0, size), size, minio.PutObjectOptions{
		ContentType:          DetectContentType(req.File),
		UserMetadata:         req.Fields,
		Progress:             &progressHook{total: size, onProgress: onProgress},
		DisableMultipart:     true,
		DisableContentSha256: true,
	})
	if err != nil {
		return minioOutcome(err)
	}

	return SuccessOutcome(200, info.ETag)
}

func minioOutcome(err error) Outcome {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		return NetworkErrorOutcome(err)
	}
	return FailureOutcome(resp.StatusCode, fmt.Sprintf("%s: %s", resp.Code, resp.Message))
}
