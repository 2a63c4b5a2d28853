package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/entity-harvester/internal/storage"
)

func TestBlobStoreCreateCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.Create(context.Background(), "path/page.html", "text/html", payload)
	require.NoError(t, err)
	assert.Equal(t, "memory://path/page.html", uri)

	payload[0] = 'C'
	assert.Equal(t, "content", string(store.data["path/page.html"]))

	read, err := store.Read(context.Background(), "path/page.html")
	require.NoError(t, err)
	read[0] = 'X'
	assert.Equal(t, "content", string(store.data["path/page.html"]))
}

func TestBlobStoreCreateIsExclusive(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	_, err := store.Create(ctx, "a/b.json", "application/json", []byte("1"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "a/b.json", "application/json", []byte("2"))
	require.ErrorIs(t, err, storage.ErrExists)

	_, err = store.Read(ctx, "a/missing.json")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBlobStoreListDirectChildren(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	for _, key := range []string{"x/2.json", "x/1.json", "x/y/3.json", "z.json"} {
		_, err := store.Create(ctx, key, "", nil)
		require.NoError(t, err)
	}

	names, err := store.List(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.json", "2.json"}, names)

	root, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"z.json"}, root)

	empty, err := store.List(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 4, store.Len())
}
