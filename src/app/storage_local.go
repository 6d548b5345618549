package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage keeps images below a root directory that the HTTP server
// exposes under /uploads.
type LocalStorage struct {
	root    string
	baseURL string
}

func NewLocalStorage(root, baseURL string) *LocalStorage {
	return &LocalStorage{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (l *LocalStorage) Kind() StorageKind { return StorageLocal }

func (l *LocalStorage) Root() string { return l.root }

// Put writes data to <root>/<key>. The directory tree is created on first use.
func (l *LocalStorage) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return key, nil
}

func (l *LocalStorage) PresignedWriteURL(context.Context, string, string, time.Duration) (string, error) {
	return "", ErrNotSupported
}

// PresignedReadURL returns the static file URL for key. It never expires.
func (l *LocalStorage) PresignedReadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if strings.HasPrefix(key, "/") {
		return l.baseURL + key, nil
	}
	return l.baseURL + "/uploads/" + key, nil
}

// UploadURL is the direct-upload endpoint clients use instead of a presigned URL.
func (l *LocalStorage) UploadURL() string {
	return l.baseURL + "/images/upload"
}
