package storage_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"store-migrator/core/errs"
	"store-migrator/core/storage"
	"store-migrator/core/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestNewClient(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := storage.Config{
			Endpoint:  "localhost:9000",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			UseSSL:    false,
			Bucket:    "test-bucket",
			Region:    "us-east-1",
		}

		client, err := storage.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("EndpointWithHTTP", func(t *testing.T) {
		cfg := storage.Config{
			Endpoint:  "http://localhost:9000",
			AccessKey: "testkey",
			SecretKey: "testsecret",
		}

		client, err := storage.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("EndpointWithHTTPS", func(t *testing.T) {
		cfg := storage.Config{
			Endpoint:  "https://s3.amazonaws.com",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			UseSSL:    true,
			Region:    "us-east-1",
		}

		client, err := storage.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/assets" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := storage.Config{
		Provider: storage.ProviderMinio,
		Endpoint: srv.URL,
		Bucket:   "assets",
		Region:   "us-east-1",
	}

	bucket, err := storage.Open(context.Background(), cfg)
	assert.NoError(t, err)
	assert.Equal(t, "assets", bucket.Name())

	cfg.Bucket = "missing"
	_, err = storage.Open(context.Background(), cfg)
	assert.True(t, errs.IsFatalConfig(err))

	_, err = storage.Open(context.Background(), storage.Config{Provider: "ftp"})
	assert.True(t, errs.IsFatalConfig(err))
}

func TestCheckBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("Exists", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "assets").Return(true, nil)
		assert.NoError(t, storage.CheckBucket(ctx, client, "assets"))
	})

	t.Run("Missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "assets").Return(false, nil)
		assert.True(t, errs.IsFatalConfig(storage.CheckBucket(ctx, client, "assets")))
	})

	t.Run("Unreachable", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "assets").Return(false, errors.New("dial tcp: refused"))
		assert.True(t, errs.IsFatalConfig(storage.CheckBucket(ctx, client, "assets")))
	})
}
