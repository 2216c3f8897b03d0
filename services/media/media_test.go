package media

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/media/")
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.Put(ctx, "charts/1_x.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/media/charts/1_x.png", uri)

	data, err := store.Get(ctx, "charts/1_x.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	require.NoError(t, store.Delete(ctx, "charts/1_x.png"))
	_, err = store.Get(ctx, "charts/1_x.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)

	for _, key := range []string{"../etc/passwd", "/abs", "a/../../b", ""} {
		_, err := store.Put(context.Background(), key, []byte("x"), "text/plain")
		assert.Error(t, err, key)
	}
}

func TestArtifactRelease(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)
	ctx := context.Background()

	released, err := NewArtifact(ctx, store, ChartKey(), []byte("a"), "image/png")
	require.NoError(t, err)
	released.Release(ctx)
	_, err = store.Get(ctx, released.Key)
	assert.ErrorIs(t, err, ErrNotFound)

	kept, err := NewArtifact(ctx, store, ChartKey(), []byte("b"), "image/png")
	require.NoError(t, err)
	kept.Keep()
	kept.Release(ctx)
	_, err = store.Get(ctx, kept.Key)
	assert.NoError(t, err)

	var nilArtifact *Artifact
	nilArtifact.Release(ctx)
}

func TestKeys(t *testing.T) {
	assert.True(t, strings.HasPrefix(AudioKey(2, 10, ".MP3"), "audio/2_10_"))
	assert.True(t, strings.HasSuffix(AudioKey(2, 10, ".MP3"), ".mp3"))
	assert.True(t, strings.HasSuffix(AudioKey(1, 1, "../x"), ".webm"))
	assert.True(t, strings.HasPrefix(ChartKey(), "charts/"))
	assert.True(t, strings.HasPrefix(PhotoKey(7, "png"), "user_photos/7/"))
}
