package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	maxResponseBodySize = 64 * 1024
	contentSniffSize    = 3072
	defaultContentType  = "application/octet-stream"
)

// HTTPConfig holds configuration for the multipart HTTP transport.
type HTTPConfig struct {
	// Token is sent as a bearer token when not empty.
	Token string

	// Headers are set on every request.
	Headers map[string]string

	// HTTPClient is the underlying HTTP client.
	// If nil, DefaultHTTPClient is used.
	HTTPClient *http.Client
}

// HTTPTransport uploads a file as a single multipart/form-data POST request.
// The body is streamed from the file, it is never buffered in memory.
type HTTPTransport struct {
	client  *retryablehttp.Client
	token   string
	headers map[string]string
	logger  log.Logger
}

// NewHTTPTransport ...
func NewHTTPTransport(config HTTPConfig, logger log.Logger) *HTTPTransport {
	if logger == nil {
		logger = log.NewLogger()
	}

	client := retryhttp.NewClient(logger)
	// Retrying is the transfer worker's job, a transport reports every outcome as is.
	client.RetryMax = 0
	client.CheckRetry = neverRetry
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if config.HTTPClient != nil {
		client.HTTPClient = config.HTTPClient
	} else {
		client.HTTPClient = DefaultHTTPClient()
	}

	return &HTTPTransport{
		client:  client,
		token:   config.Token,
		headers: config.Headers,
		logger:  logger,
	}
}

// DefaultHTTPClient creates an HTTP client without an overall timeout.
// Stalls and attempt deadlines are enforced by the caller through the request context.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:          10,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			Proxy:                 http.ProxyFromEnvironment,
		},
	}
}

// Send ...
func (t *HTTPTransport) Send(ctx context.Context, req Request, onProgress ProgressFunc) Outcome {
	if req.File == nil {
		return NetworkErrorOutcome(fmt.Errorf("no file to send"))
	}

	body, err := newMultipartBody(req)
	if err != nil {
		return NetworkErrorOutcome(fmt.Errorf("prepare body: %w", err))
	}

	bodyFunc := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		return body.reader(onProgress), nil
	})
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, req.URL, bodyFunc)
	if err != nil {
		return NetworkErrorOutcome(fmt.Errorf("create request: %w", err))
	}
	httpReq.ContentLength = body.size()
	httpReq.Header.Set("Content-Type", body.contentType)
	if t.token != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.token))
	}
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	t.logger.Debugf("POST %s (%d bytes)", req.URL, httpReq.ContentLength)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return NetworkErrorOutcome(err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			t.logger.Warnf("Failed to close response body: %s", err)
		}
	}(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		t.logger.Debugf("Failed to read response body: %s", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FailureOutcome(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return SuccessOutcome(resp.StatusCode, string(respBody))
}

func neverRetry(_ context.Context, _ *http.Response, _ error) (bool, error) {
	return false, nil
}

// multipartBody is a multipart/form-data body split around the file contents:
// head holds the string fields and the file part header, tail the closing boundary.
type multipartBody struct {
	head        []byte
	tail        []byte
	contentType string
	file        File
}

func newMultipartBody(req Request) (*multipartBody, error) {
	var head bytes.Buffer
	writer := multipart.NewWriter(&head)

	keys := make([]string, 0, len(req.Fields))
	for k := range req.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := writer.WriteField(k, req.Fields[k]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(req.fileField()), escapeQuotes(path.Base(req.File.Name()))))
	header.Set("Content-Type", DetectContentType(req.File))
	if _, err := writer.CreatePart(header); err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}

	return &multipartBody{
		head:        head.Bytes(),
		tail:        []byte(fmt.Sprintf("\r\n--%s--\r\n", writer.Boundary())),
		contentType: writer.FormDataContentType(),
		file:        req.File,
	}, nil
}

func (b *multipartBody) size() int64 {
	return int64(len(b.head)) + b.file.Size() + int64(len(b.tail))
}

func (b *multipartBody) reader(onProgress ProgressFunc) io.Reader {
	return io.MultiReader(
		bytes.NewReader(b.head),
		newProgressReader(b.file, onProgress),
		bytes.NewReader(b.tail),
	)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// DetectContentType sniffs the MIME type from the first bytes of the file.
func DetectContentType(file File) string {
	mtype, err := mimetype.DetectReader(io.NewSectionReader(file, 0, contentSniffSize))
	if err != nil || mtype == nil {
		return defaultContentType
	}
	return mtype.String()
}
