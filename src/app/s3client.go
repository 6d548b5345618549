package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/patrickmn/go-cache"
)

// ClientMinio is the part of *minio.Client the S3 backend uses.
type ClientMinio interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PresignHeader(ctx context.Context, method, bucketName, objectName string, expires time.Duration, reqParams url.Values, extraHeaders http.Header) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (info minio.UploadInfo, err error)
}

// MinioS3Client is the object-store storage backend. A zero value is a valid
// but unconfigured backend: every operation fails with ErrBackendUnavailable.
type MinioS3Client struct {
	endpoint   string
	bucketName string
	client     ClientMinio
	urls       *cache.Cache
}

const defaultContentType = "application/octet-stream"

// NewMinioS3Client creates a new MinioS3Client instance. A missing endpoint or
// bucket yields an unconfigured backend rather than an error.
func NewMinioS3Client(endpoint, accessKeyID, secretAccessKey, bucketName, region string, useSSL bool) (*MinioS3Client, error) {
	if endpoint == "" || bucketName == "" {
		return &MinioS3Client{endpoint: endpoint, bucketName: bucketName}, nil
	}
	host, secure := splitEndpoint(endpoint, useSSL)
	minioClient, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", host, err)
	}
	return NewMinioS3ClientFrom(minioClient, host, bucketName), nil
}

// NewMinioS3ClientFrom wraps an existing client.
func NewMinioS3ClientFrom(client ClientMinio, endpoint, bucketName string) *MinioS3Client {
	return &MinioS3Client{
		endpoint:   endpoint,
		bucketName: bucketName,
		client:     client,
		urls:       cache.New(5*time.Minute, 10*time.Minute),
	}
}

func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	default:
		return endpoint, useSSL
	}
}

func (s3 *MinioS3Client) Kind() StorageKind { return StorageS3 }

// Configured reports whether the backend has a client and a bucket.
func (s3 *MinioS3Client) Configured() bool {
	return s3.client != nil && s3.bucketName != ""
}

func (s3 *MinioS3Client) Bucket() string { return s3.bucketName }

// CheckBucket verifies the bucket exists.
func (s3 *MinioS3Client) CheckBucket(ctx context.Context) error {
	if !s3.Configured() {
		return ErrBackendUnavailable
	}
	ok, err := s3.client.BucketExists(ctx, s3.bucketName)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s3.bucketName, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s3.bucketName)
	}
	return nil
}

// Put uploads data to the bucket under key.
func (s3 *MinioS3Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if !s3.Configured() {
		return "", ErrBackendUnavailable
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	_, err := s3.client.PutObject(ctx,
		s3.bucketName,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s3.forgetURLs(key)
	return key, nil
}

// PresignedWriteURL signs a PUT for key with the Content-Type header bound
// into the signature.
func (s3 *MinioS3Client) PresignedWriteURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if !s3.Configured() {
		return "", ErrBackendUnavailable
	}
	if ttl <= 0 {
		ttl = DefaultWriteTTL
	}
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	u, err := s3.client.PresignHeader(ctx, http.MethodPut, s3.bucketName, key, ttl, nil, headers)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload of %s: %w", key, err)
	}
	return u.String(), nil
}

// PresignedReadURL signs a GET for key. Signed URLs are reused for half of
// their lifetime.
func (s3 *MinioS3Client) PresignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !s3.Configured() {
		return "", ErrBackendUnavailable
	}
	if ttl <= 0 {
		ttl = DefaultReadTTL
	}
	cacheKey := urlCacheKey(key, ttl)
	if cached, ok := s3.urls.Get(cacheKey); ok {
		return cached.(string), nil
	}
	u, err := s3.client.PresignedGetObject(ctx, s3.bucketName, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign download of %s: %w", key, err)
	}
	s3.urls.Set(cacheKey, u.String(), ttl/2)
	return u.String(), nil
}

// Signed URLs are cached per key and lifetime.
func urlCacheKey(key string, ttl time.Duration) string {
	return key + "|" + ttl.String()
}

func (s3 *MinioS3Client) forgetURLs(key string) {
	prefix := key + "|"
	for cacheKey := range s3.urls.Items() {
		if strings.HasPrefix(cacheKey, prefix) {
			s3.urls.Delete(cacheKey)
		}
	}
}
