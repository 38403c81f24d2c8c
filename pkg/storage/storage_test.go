package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"meet-your-new-client/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "report_B.pptx"), []byte("pptx"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report_A.pdf"), []byte("%PDF-1.4"), 0o644))

	s, err := NewStore(context.Background(), config.NewDefaultStorageConfig())
	require.NoError(t, err)
	defer s.Close()

	objects, err := s.List(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, filepath.Join(dir, "b", "report_B.pptx"), objects[0].Path)
	assert.Equal(t, int64(8), objects[1].Size)

	data, err := ReadAll(context.Background(), s, objects[1].Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	_, err = s.Open(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.True(t, errors.Is(err, ErrNotExist))

	_, err = s.List(context.Background(), filepath.Join(dir, "nope"))
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestGCSObjectName(t *testing.T) {
	s := &GCSStore{bucket: "reports", prefix: "bench"}
	assert.Equal(t, "bench/a.pdf", s.objectName("a.pdf"))
	assert.Equal(t, "bench/a.pdf", s.objectName("bench/a.pdf"))
	assert.Equal(t, "gs://reports/bench/x/a.pdf", s.URI("x/a.pdf"))
}

func TestNewStoreUnknownDriver(t *testing.T) {
	_, err := NewStore(context.Background(), &config.StorageConfig{Driver: "s3"})
	assert.Error(t, err)
}
