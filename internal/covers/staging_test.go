package covers

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaging_StageAndOpen(t *testing.T) {
	staging, err := NewStaging(t.TempDir())
	require.NoError(t, err)

	path, err := staging.Stage(7, strings.NewReader("jpeg bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "cover_7_"))

	file, err := staging.Open(path)
	require.NoError(t, err)
	defer file.Close()

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestStaging_RestageReplaces(t *testing.T) {
	staging, err := NewStaging(t.TempDir())
	require.NoError(t, err)

	first, err := staging.Stage(7, strings.NewReader("old cover"))
	require.NoError(t, err)
	second, err := staging.Stage(7, strings.NewReader("new cover"))
	require.NoError(t, err)

	_, err = staging.Open(first)
	assert.Error(t, err, "previous staged file is gone")

	file, err := staging.Open(second)
	require.NoError(t, err)
	defer file.Close()
	data, _ := io.ReadAll(file)
	assert.Equal(t, "new cover", string(data))
}

func TestStaging_Discard(t *testing.T) {
	staging, err := NewStaging(t.TempDir())
	require.NoError(t, err)

	path, err := staging.Stage(3, strings.NewReader("cover"))
	require.NoError(t, err)

	require.NoError(t, staging.Discard(3))
	_, err = staging.Open(path)
	assert.Error(t, err)

	// Discarding a book with nothing staged is fine.
	assert.NoError(t, staging.Discard(99))
}

func TestStaging_OpenRejectsOutsidePaths(t *testing.T) {
	staging, err := NewStaging(t.TempDir())
	require.NoError(t, err)

	_, err = staging.Open("/etc/passwd")
	assert.Error(t, err)

	_, err = staging.Open(filepath.Join(staging.Dir(), "..", "escape.jpg"))
	assert.Error(t, err)
}
