package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	payload := []byte("zip-bytes")
	var gotName, gotBody string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/archive-bucket/o")
		gotName = r.URL.Query().Get("name")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotBody = string(body)
		fmt.Fprintf(w, `{"bucket":"archive-bucket","name":%q}`, gotName)
	})

	store := newTestStore(t, handler, Config{Bucket: "archive-bucket"})
	uri, err := store.PutObject(context.Background(), "/zips/p-1/blog_post_images.zip", "application/zip", bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, "gs://archive-bucket/zips/p-1/blog_post_images.zip", uri)
	assert.Equal(t, "zips/p-1/blog_post_images.zip", gotName)
	assert.Contains(t, gotBody, string(payload))
	assert.Contains(t, gotBody, "application/zip")
}

func TestBlobStorePutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	store := newTestStore(t, handler, Config{Bucket: "archive-bucket"})
	_, err := store.PutObject(context.Background(), "a.zip", "application/zip", bytes.NewReader([]byte("x")))
	assert.ErrorContains(t, err, "upload object a.zip")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	assert.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "  ", "", bytes.NewReader(nil))
	assert.Error(t, err)
}
