// Package media stores uploaded and generated artifacts (audio answers,
// Writing Task 1 charts, profile photos) on the local disk or in an
// S3-compatible bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("media object not found")

// Store is implemented by LocalStore and SpacesStore
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Artifact is a stored object owned by an in-flight operation.
// Release deletes it unless Keep was called first.
type Artifact struct {
	Key   string
	URI   string
	store Store
	kept  bool
}

// NewArtifact stores data under key and returns an owned artifact
func NewArtifact(ctx context.Context, store Store, key string, data []byte, contentType string) (*Artifact, error) {
	uri, err := store.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, err
	}
	return &Artifact{Key: key, URI: uri, store: store}, nil
}

// Keep transfers ownership to the caller's committed state
func (a *Artifact) Keep() {
	if a != nil {
		a.kept = true
	}
}

// Release deletes the artifact if it was not kept. Safe on nil.
func (a *Artifact) Release(ctx context.Context) {
	if a == nil || a.kept {
		return
	}
	if err := a.store.Delete(context.WithoutCancel(ctx), a.Key); err != nil && !errors.Is(err, ErrNotFound) {
		log.Warn().Err(err).Str("key", a.Key).Msg("failed to release artifact")
	}
	a.kept = true
}

// AudioKey names a speaking answer recording
func AudioKey(part int, sessionID uint, ext string) string {
	return fmt.Sprintf("audio/%d_%d_%s.%s", part, sessionID, uuid.NewString(), cleanExt(ext, "webm"))
}

// ChartKey names a generated Writing Task 1 chart
func ChartKey() string {
	return fmt.Sprintf("charts/%s.png", uuid.NewString())
}

// PhotoKey names a user profile photo
func PhotoKey(userID uint, ext string) string {
	return fmt.Sprintf("user_photos/%d/%s.%s", userID, uuid.NewString(), cleanExt(ext, "jpg"))
}

func cleanExt(ext, fallback string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" || strings.ContainsAny(ext, `/\.`) {
		return fallback
	}
	return ext
}

// validKey rejects keys that could escape the store root
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.HasPrefix(key, "..") {
		return fmt.Errorf("invalid media key %q", key)
	}
	return nil
}

// ReadAll drains r with an upper bound on size
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return data, nil
}
