package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/safelog/internal/common"
)

func TestNewKey_Unique(t *testing.T) {
	now := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	a := NewKey(now, 7, 0)
	b := NewKey(now, 7, 0)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "chunks/2025/02/7/0-"), a)
}

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	data := []byte{1, 2, 3}
	require.NoError(t, m.Put(ctx, "k", data))
	data[0] = 9

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, m.Delete(ctx, "k", "missing"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Zero(t, m.Len())
}

// fakeS3 is a path-style object server good enough for Put/Get/Delete.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = b
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		_, _ = w.Write(b)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3_RoundTripAgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewS3(ctx, S3Options{
		Region:       "us-east-1",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		BaseEndpoint: srv.URL,
		Bucket:       "vault",
	})
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "chunks/1/0", []byte("cipher")))
	assert.Contains(t, fake.objects, "/vault/chunks/1/0")

	got, err := s.Get(ctx, "chunks/1/0")
	require.NoError(t, err)
	assert.Equal(t, []byte("cipher"), got)

	require.NoError(t, s.Delete(ctx, "chunks/1/0"))
	_, err = s.Get(ctx, "chunks/1/0")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestNewS3_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("boom")
	}
	_, err := NewS3(context.Background(), S3Options{Region: "us-east-1"})
	require.Error(t, err)
}

func TestNewS3_AppliesEndpoint(t *testing.T) {
	origNew := newS3ClientFromConfig
	t.Cleanup(func() { newS3ClientFromConfig = origNew })

	var endpoint string
	var pathStyle bool
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var o s3.Options
		for _, fn := range optFns {
			fn(&o)
		}
		endpoint = aws.ToString(o.BaseEndpoint)
		pathStyle = o.UsePathStyle
		return &s3.Client{}
	}

	_, err := NewS3(context.Background(), S3Options{Region: "us-east-1", BaseEndpoint: "http://127.0.0.1:9000"})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", endpoint)
	assert.True(t, pathStyle)
}
