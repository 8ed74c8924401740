package blob

import (
	"context"
	"errors"
	"time"
)

// Store is where fetched report artifacts end up.
type Store interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) (int64, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Location returns the caller-facing address of key (a file path or an s3:// URL).
	Location(key string) string
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
}

var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrNotFound   = errors.New("object not found")
)
