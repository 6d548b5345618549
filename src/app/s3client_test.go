package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	minio_mock "photoalbum/src/app/mock"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMinioS3Client(t *testing.T) {
	ctx := context.Background()

	t.Run("Put", func(t *testing.T) {
		client := new(minio_mock.MockClient)
		client.On("PutObject", ctx, "photos", "u1/1-a.png", mock.Anything, int64(3),
			minio.PutObjectOptions{ContentType: "image/png"}).
			Return(minio.UploadInfo{Key: "u1/1-a.png"}, nil).Once()
		s3 := NewMinioS3ClientFrom(client, "s3.example.com", "photos")

		key, err := s3.Put(ctx, "u1/1-a.png", []byte{1, 2, 3}, "image/png")
		require.NoError(t, err)
		assert.Equal(t, "u1/1-a.png", key)
		client.AssertExpectations(t)
	})

	t.Run("PutDefaultsContentType", func(t *testing.T) {
		client := new(minio_mock.MockClient)
		client.On("PutObject", ctx, "photos", "k", mock.Anything, int64(1),
			minio.PutObjectOptions{ContentType: defaultContentType}).
			Return(minio.UploadInfo{}, nil).Once()
		s3 := NewMinioS3ClientFrom(client, "s3.example.com", "photos")

		_, err := s3.Put(ctx, "k", []byte{1}, "")
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("PutError", func(t *testing.T) {
		client := new(minio_mock.MockClient)
		client.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(minio.UploadInfo{}, errors.New("connection refused"))
		s3 := NewMinioS3ClientFrom(client, "s3.example.com", "photos")

		_, err := s3.Put(ctx, "k", []byte{1}, "image/png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("PresignedWriteURL", func(t *testing.T) {
		client := new(minio_mock.MockClient)
		headers := http.Header{}
		headers.Set("Content-Type", "image/jpeg")
		client.On("PresignHeader", ctx, http.MethodPut, "photos", "u1/1-a.jpg", DefaultWriteTTL, mock.Anything, headers).
			Return(minio_mock.SignedURL("photos", "u1/1-a.jpg"), nil).Once()
		s3 := NewMinioS3ClientFrom(client, "s3.example.com", "photos")

		u, err := s3.PresignedWriteURL(ctx, "u1/1-a.jpg", "image/jpeg", 0)
		require.NoError(t, err)
		assert.Equal(t, "https://s3.example.com/photos/u1/1-a.jpg?X-Amz-Signature=test", u)
		client.AssertExpectations(t)
	})

	t.Run("PresignedReadURLIsCached", func(t *testing.T) {
		client := new(minio_mock.MockClient)
		client.On("PresignedGetObject", ctx, "photos", "u1/1-a.jpg", time.Hour, mock.Anything).
			Return(minio_mock.SignedURL("photos", "u1/1-a.jpg"), nil).Once()
		s3 := NewMinioS3ClientFrom(client, "s3.example.com", "photos")

		first, err := s3.PresignedReadURL(ctx, "u1/1-a.jpg", time.Hour)
		require.NoError(t, err)
		second, err := s3.PresignedReadURL(ctx, "u1/1-a.jpg", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		client.AssertNumberOfCalls(t, "PresignedGetObject", 1)
	})

	t.Run("PresignedReadURLCachedPerLifetime", func(t *testing.T) {
		client := new(minio_mock.MockClient)
		long := &url.URL{Scheme: "https", Host: "s3.example.com", Path: "/photos/u1/1-a.jpg", RawQuery: "X-Amz-Expires=3600"}
		short := &url.URL{Scheme: "https", Host: "s3.example.com", Path: "/photos/u1/1-a.jpg", RawQuery: "X-Amz-Expires=60"}
		client.On("PresignedGetObject", ctx, "photos", "u1/1-a.jpg", time.Hour, mock.Anything).Return(long, nil).Twice()
		client.On("PresignedGetObject", ctx, "photos", "u1/1-a.jpg", time.Minute, mock.Anything).Return(short, nil).Once()
		client.On("PutObject", ctx, "photos", "u1/1-a.jpg", mock.Anything, int64(1), mock.Anything).
			Return(minio.UploadInfo{Key: "u1/1-a.jpg"}, nil).Once()
		s3 := NewMinioS3ClientFrom(client, "s3.example.com", "photos")

		u, err := s3.PresignedReadURL(ctx, "u1/1-a.jpg", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, long.String(), u)

		u, err = s3.PresignedReadURL(ctx, "u1/1-a.jpg", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, short.String(), u)

		// Re-putting the object drops every cached URL for it.
		_, err = s3.Put(ctx, "u1/1-a.jpg", []byte{1}, "image/jpeg")
		require.NoError(t, err)
		_, err = s3.PresignedReadURL(ctx, "u1/1-a.jpg", time.Hour)
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("CheckBucket", func(t *testing.T) {
		client := new(minio_mock.MockClient)
		client.On("BucketExists", ctx, "photos").Return(false, nil).Once()
		s3 := NewMinioS3ClientFrom(client, "s3.example.com", "photos")

		err := s3.CheckBucket(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("Unconfigured", func(t *testing.T) {
		s3, err := NewMinioS3Client("", "", "", "", "eu-central-1", true)
		require.NoError(t, err)
		assert.False(t, s3.Configured())

		_, err = s3.Put(ctx, "k", []byte{1}, "image/png")
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		_, err = s3.PresignedWriteURL(ctx, "k", "image/png", 0)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		_, err = s3.PresignedReadURL(ctx, "k", 0)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})

	t.Run("splitEndpoint", func(t *testing.T) {
		host, secure := splitEndpoint("https://s3.minio.com/", false)
		assert.Equal(t, "s3.minio.com", host)
		assert.True(t, secure)
		host, secure = splitEndpoint("http://localhost:9000", true)
		assert.Equal(t, "localhost:9000", host)
		assert.False(t, secure)
		host, secure = splitEndpoint("localhost:9000", true)
		assert.Equal(t, "localhost:9000", host)
		assert.True(t, secure)
	})
}
