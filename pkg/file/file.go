package file

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// Storage is a flat key/blob store.
type Storage interface {
	// Put writes data under key, replacing any previous content.
	Put(ctx context.Context, key, contentType string, data []byte) error
	// Get returns the content stored under key or ErrFileNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) bool
	// Delete removes key. Deleting a missing key returns ErrFileNotFound.
	Delete(ctx context.Context, key string) error
	// URL returns the public URL for key.
	URL(key string) string
}

// CleanKey normalizes key into a relative slash path and rejects traversal.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	if strings.Contains(key, "..") || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidPath)
	}
	return key, nil
}

// DetectContentType sniffs data when the caller did not name a type.
func DetectContentType(contentType string, data []byte) string {
	if contentType != "" {
		return contentType
	}
	return http.DetectContentType(data)
}
