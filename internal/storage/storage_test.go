package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "http://cdn.local/clips/u1/1700000000000-ace.mp4", publicURL("http://cdn.local", "clips", "/u1/1700000000000-ace.mp4"))
	assert.Equal(t, "avatars/u1/avatar", publicURL("", "avatars", "u1/avatar"))
}

func TestMemoryOverwritesAndDeletes(t *testing.T) {
	store := NewMemory("http://cdn.local/")
	ctx := context.Background()

	url, err := store.Put(ctx, BucketAvatars, "u1/avatar", strings.NewReader("first"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.local/avatars/u1/avatar", url)

	_, err = store.Put(ctx, BucketAvatars, "u1/avatar", strings.NewReader("second"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	r, ok := store.Get(BucketAvatars, "u1/avatar")
	require.True(t, ok)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, store.Delete(ctx, BucketAvatars, "u1/avatar", "missing"))
	assert.Zero(t, store.Len())

	_, err = store.Put(ctx, BucketClips, "/", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}
