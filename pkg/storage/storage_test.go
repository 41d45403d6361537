package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestStorageFS(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")
	s, err := NewStorageFS(logs.NewTestingLog(t), root)
	require.NoError(t, err)

	require.NoError(t, WriteBytes(ctx, s, "2024-03-01/1000-cat.jpg", []byte("cat")))
	require.NoError(t, WriteBytes(ctx, s, "2024-03-01/2000-dog.jpg", []byte("doggo")))
	require.NoError(t, WriteBytes(ctx, s, "2024-03-02/3000-cat.jpg", []byte("cat2")))

	b, err := ReadFile(ctx, s, "2024-03-01/2000-dog.jpg")
	require.NoError(t, err)
	require.Equal(t, "doggo", string(b))

	f, err := s.ReadFile(ctx, "2024-03-01/1000-cat.jpg")
	require.NoError(t, err)
	require.Equal(t, int64(3), f.Size)
	require.False(t, f.ModifiedAt.IsZero())
	f.Reader.Close()

	// Overwrite truncates
	require.NoError(t, WriteBytes(ctx, s, "2024-03-01/2000-dog.jpg", []byte("d")))
	b, err = ReadFile(ctx, s, "2024-03-01/2000-dog.jpg")
	require.NoError(t, err)
	require.Equal(t, "d", string(b))

	names, err := s.List(ctx, "2024-03-01/")
	require.NoError(t, err)
	require.Equal(t, []string{"2024-03-01/1000-cat.jpg", "2024-03-01/2000-dog.jpg"}, names)
	names, err = s.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, len(names))

	require.NoError(t, s.DeleteFile(ctx, "2024-03-01/1000-cat.jpg"))
	_, err = ReadFile(ctx, s, "2024-03-01/1000-cat.jpg")
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = s.URL("2024-03-02/3000-cat.jpg")
	require.ErrorIs(t, err, ErrNoPublicUrl)
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorageFS(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"", "..", "../x", "a/../../x", "/etc/passwd", "a//b", "a\\b", "./a"} {
		require.ErrorIs(t, WriteBytes(ctx, s, name, []byte("x")), ErrInvalidName, name)
		_, err := s.ReadFile(ctx, name)
		require.ErrorIs(t, err, ErrInvalidName, name)
		require.ErrorIs(t, s.DeleteFile(ctx, name), ErrInvalidName, name)
	}
	require.NoError(t, WriteBytes(ctx, s, "a..b.jpg", []byte("x")))
}
