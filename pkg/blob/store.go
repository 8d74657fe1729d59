// Package blob is the key/value object store that holds the message
// collection and uploaded pictures.
package blob

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a key has no blob
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned by Put without Overwrite when the key is taken
	ErrExists = errors.New("blob already exists")
	// ErrInvalidKey is returned for empty or malformed keys
	ErrInvalidKey = errors.New("invalid blob key")
)

// Object describes a stored blob
type Object struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	Public      bool      `json:"public"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// PutOptions controls how a blob is written
type PutOptions struct {
	ContentType string
	Public      bool
	Overwrite   bool
}

// Store is the blob store contract. Implementations must be safe for
// concurrent use; a Put with Overwrite replaces the blob as a whole.
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, key string) ([]byte, Object, error)
	Put(ctx context.Context, key string, content []byte, opts PutOptions) (Object, error)
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores backed by a remote service
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValidateKey rejects keys that cannot be addressed by URL
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.ContainsAny(key, "\x00\r\n") {
		return ErrInvalidKey
	}
	return nil
}

// URLs maps blob keys to the public URLs the API serves them under
type URLs struct {
	base string
}

// NewURLs builds URLs below baseURL + "/blobs/"
func NewURLs(baseURL string) URLs {
	return URLs{base: strings.TrimRight(baseURL, "/") + "/blobs/"}
}

// For returns the public URL of a key
func (u URLs) For(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return u.base + strings.Join(segments, "/")
}

// Key maps a URL produced by For back to its key
func (u URLs) Key(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, u.base) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(rawURL, u.base))
	if err != nil || ValidateKey(key) != nil {
		return "", false
	}
	return key, true
}
