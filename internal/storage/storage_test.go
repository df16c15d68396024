package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStore_LocalWriteRead(t *testing.T) {
	ctx := context.Background()
	s := New(Config{}, zap.NewNop())
	path := filepath.Join(t.TempDir(), "nested", "dir", "out.jsonl")

	require.NoError(t, s.Write(ctx, path, []byte("{\"a\":1}\n")))

	ok, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", string(data))
}

func TestStore_MissingFile(t *testing.T) {
	ctx := context.Background()
	s := New(Config{}, zap.NewNop())
	path := filepath.Join(t.TempDir(), "absent.csv")

	ok, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Read(ctx, path)
	var missing *MissingFileError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, path, missing.Path)
	assert.Contains(t, err.Error(), "absent.csv")
}

func TestSplitS3(t *testing.T) {
	bucket, key, err := SplitS3("s3://datasets/synthec/v0.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "datasets", bucket)
	assert.Equal(t, "synthec/v0.jsonl", key)

	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		_, _, err := SplitS3(bad)
		assert.Error(t, err, bad)
	}

	assert.True(t, IsS3("s3://b/k"))
	assert.False(t, IsS3("data/synthec_v0.jsonl"))
}
