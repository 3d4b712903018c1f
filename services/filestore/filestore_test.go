package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
)

func TestLocalStore_Put(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)

	fp, err := store.Put(context.Background(), "submissions/g1/1-report.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "submissions", "g1", "1-report.pdf"), fp)

	data, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	t.Run("escaping the directory", func(t *testing.T) {
		_, err := store.Put(context.Background(), "../outside.txt", "text/plain", strings.NewReader("x"))
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(context.Background(), "submissions/g1/1-report.pdf"))
		_, err := os.Stat(fp)
		assert.True(t, os.IsNotExist(err))

		// already gone
		assert.NoError(t, store.Delete(context.Background(), "submissions/g1/1-report.pdf"))
		assert.Error(t, store.Delete(context.Background(), "../outside.txt"))
	})
}

type s3Mock struct {
	s3iface.S3API

	err     error
	input   *s3.PutObjectInput
	body    string
	deleted []string
}

func (m *s3Mock) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.input = in
	data, _ := io.ReadAll(in.Body)
	m.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (m *s3Mock) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.deleted = append(m.deleted, aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	tests := []struct {
		name    string
		conf    core.StorageConfig
		wantURL string
	}{
		{
			name:    "cdn",
			conf:    core.StorageConfig{Bucket: "kazi", Endpoint: "https://fra1.digitaloceanspaces.com", CDNURL: "https://cdn.kazi.test/"},
			wantURL: "https://cdn.kazi.test/submissions/g1/report.pdf",
		},
		{
			name:    "endpoint",
			conf:    core.StorageConfig{Bucket: "kazi", Endpoint: "https://fra1.digitaloceanspaces.com"},
			wantURL: "https://kazi.fra1.digitaloceanspaces.com/submissions/g1/report.pdf",
		},
		{
			name:    "aws",
			conf:    core.StorageConfig{Bucket: "kazi"},
			wantURL: "s3://kazi/submissions/g1/report.pdf",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := &s3Mock{}
			store := newS3Store(mock, tc.conf)

			// a plain reader is buffered into a seeker
			url, err := store.Put(context.Background(), "submissions/g1/report.pdf", "application/pdf", io.LimitReader(strings.NewReader("%PDF-1.7"), 100))
			require.NoError(t, err)
			assert.Equal(t, tc.wantURL, url)
			assert.Equal(t, "kazi", aws.StringValue(mock.input.Bucket))
			assert.Equal(t, "application/pdf", aws.StringValue(mock.input.ContentType))
			assert.Equal(t, "%PDF-1.7", mock.body)
		})
	}

	t.Run("upload failure", func(t *testing.T) {
		store := newS3Store(&s3Mock{err: errors.New("connection reset")}, core.StorageConfig{Bucket: "kazi"})
		_, err := store.Put(context.Background(), "k", "text/plain", strings.NewReader("x"))
		assert.True(t, core.IsUpstreamUnavailable(err))
	})
}

func TestS3Store_Delete(t *testing.T) {
	mock := &s3Mock{}
	store := newS3Store(mock, core.StorageConfig{Bucket: "kazi"})
	require.NoError(t, store.Delete(context.Background(), "submissions/g1/report.pdf"))
	assert.Equal(t, []string{"kazi/submissions/g1/report.pdf"}, mock.deleted)

	mock.err = errors.New("connection reset")
	assert.True(t, core.IsUpstreamUnavailable(store.Delete(context.Background(), "k")))
}

func TestNewFileStore(t *testing.T) {
	store, err := NewFileStore(core.StorageConfig{Driver: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = NewFileStore(core.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
