package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/pkg/file"
)

func TestLocalStorage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := file.NewLocalStorage(dir, "/files")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "stories/2026/a.json", "application/json", []byte(`{"a":1}`)))
	assert.FileExists(t, filepath.Join(dir, "stories", "2026", "a.json"))
	assert.True(t, s.Exists(ctx, "stories/2026/a.json"))
	assert.False(t, s.Exists(ctx, "stories/2026"))
	assert.Equal(t, "/files/stories/2026/a.json", s.URL("stories/2026/a.json"))

	data, err := s.Get(ctx, "/stories/2026/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	require.NoError(t, s.Put(ctx, "stories/2026/a.json", "", []byte(`{"a":2}`)))
	data, err = s.Get(ctx, "stories/2026/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	_, err = s.Get(ctx, "stories/2026")
	assert.ErrorIs(t, err, file.ErrIsDirectory)

	require.NoError(t, s.Delete(ctx, "stories/2026/a.json"))
	assert.ErrorIs(t, s.Delete(ctx, "stories/2026/a.json"), file.ErrFileNotFound)
	_, err = s.Get(ctx, "stories/2026/a.json")
	assert.ErrorIs(t, err, file.ErrFileNotFound)

	entries, err := os.ReadDir(filepath.Join(dir, "stories", "2026"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files must not be left behind")
}

func TestLocalStorage_Limits(t *testing.T) {
	t.Parallel()
	s, err := file.NewLocalStorage(t.TempDir(), "", file.WithLocalMaxSize(4))
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "big", "", []byte("12345")), file.ErrFileTooLarge)
	assert.ErrorIs(t, s.Put(ctx, "../escape", "", []byte("1")), file.ErrInvalidPath)
	assert.ErrorIs(t, s.Put(ctx, "", "", []byte("1")), file.ErrInvalidPath)

	_, err = file.NewLocalStorage("", "")
	assert.ErrorIs(t, err, file.ErrInvalidConfig)
}

func TestCleanKey(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"/a/b":     "a/b",
		"a//b/":    "a/b",
		`a\b.json`: "a/b.json",
		"./a":      "a",
	}
	for in, want := range tests {
		got, err := file.CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := file.CleanKey("a/../../b")
	assert.ErrorIs(t, err, file.ErrInvalidPath)
}
