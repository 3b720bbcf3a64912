package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/weightpack/storage"
)

func TestKeyMapping(t *testing.T) {
	s := NewStore(nil, "bucket", "/models/gemma/")
	assert.Equal(t, "models/gemma/2b.sbs", s.key("2b.sbs"))
	assert.Equal(t, "models/gemma/", s.key(""))

	s = NewStore(nil, "bucket", "")
	assert.Equal(t, "2b.sbs", s.key("/2b.sbs"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}

// TestMinioStore_Integration requires a running MinIO instance.
func TestMinioStore_Integration(t *testing.T) {
	const bucket = "test-weightpack"

	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, storage.Put(ctx, store, "test.sbs", data))

	obj, err := store.Open(ctx, "test.sbs")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), obj.Size())

	buf := make([]byte, 5)
	_, err = storage.ReadFull(ctx, obj, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(buf))
	require.NoError(t, obj.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.sbs")

	require.NoError(t, store.Delete(ctx, "test.sbs"))
	_, err = store.Open(ctx, "test.sbs")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	w, err := store.Create(ctx, "aborted.sbs")
	require.NoError(t, err)
	_, _ = w.Write([]byte("partial"))
	require.NoError(t, w.Abort())
	_, err = store.Open(ctx, "aborted.sbs")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
