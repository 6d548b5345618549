package app

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type StorageKind string

const (
	StorageLocal StorageKind = "local"
	StorageS3    StorageKind = "s3"
)

const (
	DefaultWriteTTL = 900 * time.Second
	DefaultReadTTL  = 3600 * time.Second
	anonymousOwner  = "anonymous"
)

// StorageBackend persists image bytes under a key and hands out URLs for them.
type StorageBackend interface {
	Kind() StorageKind
	// Put stores data under key and returns the key it was stored under.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// PresignedWriteURL returns a time-limited URL a client can PUT bytes to.
	PresignedWriteURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	// PresignedReadURL returns a URL the object can be fetched from.
	PresignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type StorageOptions struct {
	Kind      StorageKind
	UploadDir string
	BaseURL   string
	S3        *MinioS3Client
}

// NewStorageBackend picks the backend once for the lifetime of the process.
func NewStorageBackend(opts StorageOptions) (StorageBackend, error) {
	switch opts.Kind {
	case StorageLocal:
		return NewLocalStorage(opts.UploadDir, opts.BaseURL), nil
	case StorageS3:
		if opts.S3 == nil {
			return &MinioS3Client{}, nil
		}
		return opts.S3, nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", opts.Kind)
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// SanitizeFilename replaces every character outside [A-Za-z0-9.-_] with '-'.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "-")
}

// StorageKey builds "<owner>/<unixMillis>-<sanitized filename>". An empty
// owner is stored under "anonymous".
func StorageKey(ownerID, filename string, now time.Time) string {
	owner := SanitizeFilename(ownerID)
	if owner == "" {
		owner = anonymousOwner
	}
	return owner + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + SanitizeFilename(filename)
}

// keyOwner returns the owner namespace of key, the segment before the first
// slash.
func keyOwner(key string) string {
	owner, _, found := strings.Cut(key, "/")
	if !found {
		return ""
	}
	return owner
}

var validKey = regexp.MustCompile(`^[a-zA-Z0-9.\-_/]+$`)

// ValidateKey rejects keys that could escape the storage root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || !validKey.MatchString(key) {
		return BadRequestf("invalid storage key %q", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return BadRequestf("invalid storage key %q", key)
		}
	}
	return nil
}
